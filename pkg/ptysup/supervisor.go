// Package ptysup supervises child processes under a pseudo-terminal: it
// allocates a bounded set of slots, spawns commands so the child believes it
// is attached to an interactive terminal, merges its stdout/stderr into the
// durable output log and the ring/wait-detector pipeline, and supports
// writing input back and resizing the window.
package ptysup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sandoak/gsdharness/pkg/apierr"
	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/protocoldir"
	"github.com/sandoak/gsdharness/pkg/ring"
	"github.com/sandoak/gsdharness/pkg/storage"
	"github.com/sandoak/gsdharness/pkg/types"
)

// DefaultSlots is the number of concurrent child processes the supervisor
// will run when Config.Slots is zero.
const DefaultSlots = 4

// DefaultSessionTimeout un-polls a session: if no orchestrator client has
// called get_output/get_pending for this long, the supervisor terminates it.
const DefaultSessionTimeout = 10 * time.Minute

// Config configures a Supervisor.
type Config struct {
	Slots          int
	SessionTimeout time.Duration
	RingMaxBytes   int
	Store          storage.Store
	Events         *events.Broker
	Mirror         *protocoldir.Mirror
	// Project scopes the active-files mirror refreshed after
	// RecoverOrphans releases a dead session's file claims.
	Project string
}

type slot struct {
	mu        sync.Mutex
	sessionID string
	ptmx      *os.File
	cmd       *exec.Cmd
	ring      *ring.Buffer
	detector  *ring.Detector
}

func (s *slot) free() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID == ""
}

// Supervisor owns every live child process and its slot assignment.
type Supervisor struct {
	cfg    Config
	slots  []*slot
	store  storage.Store
	events *events.Broker
	mirror *protocoldir.Mirror
	logger zerolog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Supervisor. It does not spawn anything until Start and
// RecoverOrphans are called.
func New(cfg Config, logger zerolog.Logger) *Supervisor {
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultSlots
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	slots := make([]*slot, cfg.Slots)
	for i := range slots {
		slots[i] = &slot{}
	}
	return &Supervisor{
		cfg:    cfg,
		slots:  slots,
		store:  cfg.Store,
		events: cfg.Events,
		mirror: cfg.Mirror,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// mirrorStatus best-effort writes sess to the Protocol Directory's
// status.json, and result.json once sess has reached a terminal status. A
// nil Mirror (e.g. in tests that don't wire one) makes this a no-op.
func (s *Supervisor) mirrorStatus(sess *types.Session) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.WriteSessionStatus(sess); err != nil {
		s.logger.Error().Err(err).Str("session_id", sess.ID).Msg("mirror session status")
	}
	if sess.Status.Terminal() {
		if err := s.mirror.WriteResult(sess); err != nil {
			s.logger.Error().Err(err).Str("session_id", sess.ID).Msg("mirror session result")
		}
	}
}

// mirrorActiveFiles best-effort refreshes active-files.json from the
// store's current claim set. A nil Mirror or unset Project makes this a
// no-op, since file claims are scoped per project.
func (s *Supervisor) mirrorActiveFiles(ctx context.Context) {
	if s.mirror == nil || s.cfg.Project == "" {
		return
	}
	active, err := s.store.ListActiveFiles(ctx, s.cfg.Project)
	if err != nil {
		s.logger.Error().Err(err).Msg("list active files to refresh mirror")
		return
	}
	if err := s.mirror.WriteActiveFiles(active); err != nil {
		s.logger.Error().Err(err).Msg("mirror active files")
	}
}

// Start begins the session-timeout watchdog loop.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go s.watchTimeouts()
}

// Stop sends SIGTERM to every running child and waits for the watchdog loop
// and every session's pump and reap goroutines to exit, so it returns only
// once each child has exited. It never escalates past SIGTERM.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	for _, sl := range s.slots {
		sl.mu.Lock()
		cmd := sl.cmd
		sl.mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}
	s.wg.Wait()
}

// Spawn starts command in workDir under a pty, assigning it the first free
// slot. It returns apierr.Conflict (code "rejected_slot_full") if every slot
// is occupied.
func (s *Supervisor) Spawn(ctx context.Context, workDir, command string) (*types.Session, error) {
	idx, sl, err := s.claimSlot()
	if err != nil {
		return nil, err
	}

	sess := &types.Session{
		ID:         uuid.NewString(),
		Slot:       idx,
		WorkDir:    workDir,
		Command:    command,
		Status:     types.SessionRunning,
		StartedAt:  time.Now().UTC(),
		LastPolled: time.Now().UTC(),
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "GSD_HARNESS_CHILD=1")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		s.releaseSlot(idx)
		return nil, apierr.Wrap(apierr.ChildFailure, "spawn_failed", "failed to start child under pty", err)
	}

	pid := cmd.Process.Pid
	sess.PID = &pid

	if err := s.store.CreateSession(ctx, sess); err != nil {
		ptmx.Close()
		_ = cmd.Process.Kill()
		s.releaseSlot(idx)
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s.mirrorStatus(sess)

	sl.mu.Lock()
	sl.sessionID = sess.ID
	sl.ptmx = ptmx
	sl.cmd = cmd
	sl.ring = ring.New(s.cfg.RingMaxBytes)
	sl.detector = ring.NewDetector()
	sl.mu.Unlock()

	s.publish(events.EventSessionStarted, sess.ID, "session started")

	s.wg.Add(1)
	go s.pump(ctx, sess.ID, sl)

	s.wg.Add(1)
	go s.reap(ctx, sess.ID, sl, cmd)

	return sess, nil
}

// WriteInput injects bytes into a running session's pty, as if typed by an
// attached terminal.
func (s *Supervisor) WriteInput(sessionID string, data []byte) error {
	sl := s.slotFor(sessionID)
	if sl == nil {
		return apierr.NotFoundf("session_not_found", "no running session %s", sessionID)
	}
	sl.mu.Lock()
	ptmx := sl.ptmx
	sl.mu.Unlock()
	if ptmx == nil {
		return apierr.NotFoundf("session_not_found", "no running session %s", sessionID)
	}
	if _, err := ptmx.Write(data); err != nil {
		return apierr.Wrap(apierr.IOFailure, "write_input_failed", "failed to write to child pty", err)
	}
	return nil
}

// Resize changes the pty window size for a running session.
func (s *Supervisor) Resize(sessionID string, cols, rows int) error {
	sl := s.slotFor(sessionID)
	if sl == nil {
		return apierr.NotFoundf("session_not_found", "no running session %s", sessionID)
	}
	sl.mu.Lock()
	ptmx := sl.ptmx
	sl.mu.Unlock()
	if ptmx == nil {
		return apierr.NotFoundf("session_not_found", "no running session %s", sessionID)
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return apierr.Wrap(apierr.IOFailure, "resize_failed", "failed to resize child pty", err)
	}
	return nil
}

// EndSession terminates a running session's child process. The session's
// own reap goroutine observes the exit and transitions it to failed (a
// signaled process does not exit 0), persists the terminal status, and
// releases the slot — EndSession only delivers the signal.
func (s *Supervisor) EndSession(sessionID string) error {
	sl := s.slotFor(sessionID)
	if sl == nil {
		return apierr.NotFoundf("session_not_found", "no running session %s", sessionID)
	}
	sl.mu.Lock()
	cmd := sl.cmd
	sl.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return apierr.NotFoundf("session_not_found", "no running session %s", sessionID)
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return apierr.Wrap(apierr.IOFailure, "end_session_failed", "failed to signal child", err)
	}
	return nil
}

func (s *Supervisor) claimSlot() (int, *slot, error) {
	for i, sl := range s.slots {
		if sl.free() {
			sl.mu.Lock()
			if sl.sessionID == "" {
				sl.sessionID = "claiming"
				sl.mu.Unlock()
				return i, sl, nil
			}
			sl.mu.Unlock()
		}
	}
	return 0, nil, apierr.New(apierr.Conflict, "rejected_slot_full", "no free session slots")
}

func (s *Supervisor) releaseSlot(idx int) {
	sl := s.slots[idx]
	sl.mu.Lock()
	sl.sessionID = ""
	sl.ptmx = nil
	sl.cmd = nil
	sl.ring = nil
	sl.mu.Unlock()
}

func (s *Supervisor) slotFor(sessionID string) *slot {
	for _, sl := range s.slots {
		sl.mu.Lock()
		match := sl.sessionID == sessionID
		sl.mu.Unlock()
		if match {
			return sl
		}
	}
	return nil
}

func (s *Supervisor) publish(t events.EventType, sessionID, msg string) {
	if s.events == nil {
		return
	}
	s.events.Publish(&events.Event{Type: t, SessionID: sessionID, Message: msg})
}

// watchTimeouts periodically force-terminates sessions that have not been
// polled (get_output/get_pending) within Config.SessionTimeout.
func (s *Supervisor) watchTimeouts() {
	defer s.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.terminateStaleSessions()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Supervisor) terminateStaleSessions() {
	ctx := context.Background()
	active, err := s.store.ListActiveSessions(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list active sessions for timeout sweep")
		return
	}
	for _, sess := range active {
		if time.Since(sess.LastPolled) <= s.cfg.SessionTimeout {
			continue
		}
		s.logger.Warn().Str("session_id", sess.ID).Msg("session exceeded poll timeout, terminating")
		sl := s.slotFor(sess.ID)
		if sl == nil {
			continue
		}
		sl.mu.Lock()
		cmd := sl.cmd
		sl.mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}
}
