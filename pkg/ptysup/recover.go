package ptysup

import (
	"context"
	"syscall"
	"time"

	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/types"
)

// RecoverOrphans runs once at startup. A session the store still marks as
// running or waiting_checkpoint, with no supervisor process attached to it
// in this process (every slot starts empty on a fresh process), is by
// definition orphaned: either the previous harness process crashed, or the
// child outlived it. Each such session is marked failed and orphaned, and
// if its recorded PID still resolves to a live process, that process is
// signaled to terminate so it cannot keep mutating files unsupervised.
func (s *Supervisor) RecoverOrphans(ctx context.Context) (int, error) {
	active, err := s.store.ListActiveSessions(ctx)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, sess := range active {
		s.logger.Warn().Str("session_id", sess.ID).Msg("recovering orphaned session from prior run")

		if sess.PID != nil && processAlive(*sess.PID) {
			_ = syscall.Kill(*sess.PID, syscall.SIGTERM)
		}

		now := time.Now().UTC()
		sess.Status = types.SessionFailed
		sess.Orphaned = true
		sess.EndedAt = &now
		if err := s.store.UpdateSession(ctx, sess); err != nil {
			s.logger.Error().Err(err).Str("session_id", sess.ID).Msg("mark orphaned session failed")
			continue
		}
		s.mirrorStatus(sess)
		if err := s.store.ReleaseFilesForSession(ctx, sess.ID); err != nil {
			s.logger.Error().Err(err).Str("session_id", sess.ID).Msg("release file claims for orphaned session")
		} else {
			s.mirrorActiveFiles(ctx)
		}

		s.publish(events.EventSessionFailed, sess.ID, "orphan detected on startup")
		recovered++
	}

	// The caller publishes a single, properly-counted recovery:complete
	// event once it has this count; publishing one here too would duplicate it.
	return recovered, nil
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
