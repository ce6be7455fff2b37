// Package harness is the composition root: it owns every subsystem's
// lifecycle (Durable Store, Event Bus, PTY Supervisor, Message Channel,
// Dependency-Graph Scheduler, Protocol Directory mirror, Tool-Call
// Endpoint, dashboard push socket) and the single HTTP listener that
// serves both the dashboard and the tool-call transport.
package harness

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/sandoak/gsdharness/pkg/channel"
	"github.com/sandoak/gsdharness/pkg/config"
	"github.com/sandoak/gsdharness/pkg/dashboard"
	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/mcpendpoint"
	"github.com/sandoak/gsdharness/pkg/metrics"
	"github.com/sandoak/gsdharness/pkg/protocoldir"
	"github.com/sandoak/gsdharness/pkg/ptysup"
	"github.com/sandoak/gsdharness/pkg/scheduler"
	"github.com/sandoak/gsdharness/pkg/storage"
)

// ShutdownGrace bounds how long Shutdown waits for children to exit on
// their own after SIGTERM before escalating to SIGKILL.
const ShutdownGrace = 10 * time.Second

// Config bundles everything a Harness needs to start.
type Config struct {
	Project      string
	ProjectRoot  string // contains .orchestration/ and is the parent of SpecDir
	DataDir      string
	Addr         string // e.g. ":3333"
	Config       config.Config
	BuildCommand scheduler.CommandBuilder
}

// Harness wires and runs every subsystem for one project.
type Harness struct {
	cfg Config

	Store     storage.Store
	Events    *events.Broker
	Super     *ptysup.Supervisor
	Channel   *channel.Channel
	Scheduler *scheduler.Scheduler
	Mirror    *protocoldir.Mirror
	Endpoint  *mcpendpoint.Endpoint
	Dashboard *dashboard.Server

	httpServer *http.Server
	collector  *metrics.Collector
	logger     zerolog.Logger
}

// New opens the store and wires every subsystem. It does not start any
// background loop or listener; call Start for that.
func New(cfg Config, logger zerolog.Logger) (*Harness, error) {
	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	bus := events.NewBroker()

	mirror := protocoldir.New(cfg.ProjectRoot)

	super := ptysup.New(ptysup.Config{
		Slots:   cfg.Config.MaxParallelExecutions,
		Store:   store,
		Events:  bus,
		Mirror:  mirror,
		Project: cfg.Project,
	}, logger)

	ch := channel.New(channel.Config{Store: store, Events: bus, Mirror: mirror}, logger)

	sched := scheduler.New(scheduler.Config{
		Store:        store,
		Spawner:      super,
		Events:       bus,
		Mirror:       mirror,
		BuildCommand: cfg.BuildCommand,
	}, logger)

	ep := mcpendpoint.New(mcpendpoint.Config{
		Store:      store,
		Supervisor: super,
		Scheduler:  sched,
		Channel:    ch,
		Events:     bus,
		Mirror:     mirror,
	}, logger)

	dash := dashboard.New(dashboard.Config{Store: store, Events: bus, Supervisor: super}, logger)

	return &Harness{
		cfg:       cfg,
		Store:     store,
		Events:    bus,
		Super:     super,
		Channel:   ch,
		Scheduler: sched,
		Mirror:    mirror,
		Endpoint:  ep,
		Dashboard: dash,
		collector: metrics.NewCollector(store, cfg.Project),
		logger:    logger,
	}, nil
}

// Start recovers orphaned sessions from a prior crash, starts every
// background loop, binds the HTTP listener carrying both the dashboard and
// the tool-call transport, and returns once the listener is up.
func (h *Harness) Start(ctx context.Context) error {
	n, err := h.Super.RecoverOrphans(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		h.Events.Publish(&events.Event{Type: events.EventRecoveryComplete, Message: recoveredMessage(n)})
	}

	h.Events.Start()
	h.Super.Start()
	h.Channel.Start()
	h.Scheduler.Start(h.cfg.Project)
	h.collector.Start()

	metrics.RegisterComponent("storage", true, "")
	metrics.RegisterComponent("ptysup", true, "")
	metrics.RegisterComponent("scheduler", true, "")

	mcpHandler := mcpserver.NewStreamableHTTPServer(h.mcpServer())

	router := chi.NewRouter()
	router.Mount("/", h.Dashboard.Handler())
	router.Handle("/mcp", mcpHandler)
	router.Handle("/metrics", metrics.Handler())
	router.Handle("/health", metrics.HealthHandler())
	router.Handle("/ready", metrics.ReadyHandler())
	router.Handle("/live", metrics.LivenessHandler())

	h.httpServer = &http.Server{
		Addr:         h.cfg.Addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return err
	}

	go func() {
		if err := h.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error().Err(err).Msg("harness HTTP server stopped")
		}
	}()

	return nil
}

func (h *Harness) mcpServer() *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer(
		"gsdharness",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions("Tool-call endpoint for the AI coding-agent orchestration harness."),
	)
	h.Endpoint.Register(s)
	return s
}

// Shutdown stops accepting new sessions, signals every child process, waits
// up to ShutdownGrace for them to exit, force-kills any stragglers, then
// closes the store. Every step runs even if an earlier one errors; the
// store-close error is the one returned, since it is the step most likely
// to signal real data loss.
func (h *Harness) Shutdown(ctx context.Context) error {
	h.Scheduler.Stop()

	if h.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = h.httpServer.Shutdown(shutdownCtx)
	}

	done := make(chan struct{})
	go func() {
		h.Super.Stop() // sends SIGTERM, blocks until every child's pump/reap goroutine exits
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ShutdownGrace):
		h.killStragglers(ctx)
		<-done
	}

	h.Channel.Stop()
	h.collector.Stop()
	h.Events.Stop()

	return h.Store.Close()
}

// killStragglers sends SIGKILL to every session the store still considers
// active after the grace period elapsed.
func (h *Harness) killStragglers(ctx context.Context) {
	sessions, err := h.Store.ListSessions(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("list sessions during forced shutdown")
		return
	}
	for _, sess := range sessions {
		if !sess.Status.Active() || sess.PID == nil {
			continue
		}
		if err := syscall.Kill(*sess.PID, syscall.SIGKILL); err != nil {
			h.logger.Warn().Err(err).Str("session_id", sess.ID).Int("pid", *sess.PID).Msg("force-kill straggler")
		}
	}
}

func recoveredMessage(n int) string {
	if n == 1 {
		return "recovered 1 orphaned session"
	}
	return "recovered " + strconv.Itoa(n) + " orphaned sessions"
}
