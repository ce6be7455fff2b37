package ptysup

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/sandoak/gsdharness/pkg/events"
	"github.com/sandoak/gsdharness/pkg/types"
)

// pump reads a session's merged pty output, persists it as OutputChunks,
// feeds the ring buffer, runs the wait detector, and publishes
// session:output / session:waiting events. It returns when the pty closes,
// which happens after the child exits (see reap).
func (s *Supervisor) pump(ctx context.Context, sessionID string, sl *slot) {
	defer s.wg.Done()

	var seq int64
	var lastWaiting atomic.Bool
	buf := make([]byte, 4096)

	for {
		n, err := sl.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			seq++

			if werr := s.store.AppendOutputChunk(ctx, &types.OutputChunk{
				SessionID: sessionID,
				Seq:       seq,
				Stream:    types.StreamStdout,
				Data:      chunk,
				CreatedAt: time.Now().UTC(),
			}); werr != nil {
				s.logger.Error().Err(werr).Str("session_id", sessionID).Msg("persist output chunk")
			}

			sl.ring.Write(chunk)
			s.publish(events.EventSessionOutput, sessionID, "")

			class := sl.detector.Classify(sl.ring.Bytes())
			if class.Waiting && lastWaiting.CompareAndSwap(false, true) {
				s.publish(events.EventSessionWaiting, sessionID, string(class.Kind))
			} else if !class.Waiting {
				lastWaiting.Store(false)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug().Err(err).Str("session_id", sessionID).Msg("pty read ended")
			}
			return
		}
	}
}

// reap waits for the child to exit, records the terminal status, releases
// the slot, and closes the pty. The ordering matters: the pty's slave side
// must be considered closed before the master is released, so Wait() (which
// observes process exit, not pty closure) runs first and ptmx.Close() comes
// after — reversing this invites the pty driver to report spurious EIO
// reads to anyone still polling the master.
func (s *Supervisor) reap(ctx context.Context, sessionID string, sl *slot, cmd *exec.Cmd) {
	defer s.wg.Done()

	err := cmd.Wait()

	sess, getErr := s.store.GetSession(ctx, sessionID)
	if getErr != nil {
		s.logger.Error().Err(getErr).Str("session_id", sessionID).Msg("load session for reap")
	} else {
		now := time.Now().UTC()
		sess.EndedAt = &now
		if err != nil {
			sess.Status = types.SessionFailed
		} else {
			sess.Status = types.SessionCompleted
		}
		if uerr := s.store.UpdateSession(ctx, sess); uerr != nil {
			s.logger.Error().Err(uerr).Str("session_id", sessionID).Msg("persist terminal session status")
		}
		s.mirrorStatus(sess)
	}

	if err != nil {
		s.publish(events.EventSessionFailed, sessionID, err.Error())
	} else {
		s.publish(events.EventSessionCompleted, sessionID, "")
	}

	sl.mu.Lock()
	ptmx := sl.ptmx
	sl.mu.Unlock()
	if ptmx != nil {
		ptmx.Close()
	}

	idx := s.indexOf(sl)
	if idx >= 0 {
		s.releaseSlot(idx)
	}
}

func (s *Supervisor) indexOf(target *slot) int {
	for i, sl := range s.slots {
		if sl == target {
			return i
		}
	}
	return -1
}
