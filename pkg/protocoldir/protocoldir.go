// Package protocoldir mirrors harness state onto disk under .orchestration/
// so external tooling (editors, git, ad hoc scripts) can observe it without
// going through the Tool-Call Endpoint. The store is always the source of
// truth; every write here is a whole-file overwrite, and on any disagreement
// between disk and store, the store wins.
package protocoldir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sandoak/gsdharness/pkg/types"
)

// Mirror writes the .orchestration/ directory tree rooted at Dir.
type Mirror struct {
	Dir string
}

// New builds a Mirror rooted at specDir/.orchestration.
func New(specDir string) *Mirror {
	return &Mirror{Dir: filepath.Join(specDir, ".orchestration")}
}

func (m *Mirror) sessionDir(sessionID string) string {
	return filepath.Join(m.Dir, "sessions", sessionID)
}

func (m *Mirror) ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// WriteDependencyGraph overwrites dependency-graph.json with the current
// plan set.
func (m *Mirror) WriteDependencyGraph(plans []*types.Plan) error {
	if err := m.ensureDir(m.Dir); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(m.Dir, "dependency-graph.json"), plans)
}

// WriteActiveFiles overwrites active-files.json with the current claim set.
func (m *Mirror) WriteActiveFiles(entries []*types.ActiveFileEntry) error {
	if err := m.ensureDir(m.Dir); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(m.Dir, "active-files.json"), entries)
}

// WriteSessionStatus overwrites sessions/<id>/status.json.
func (m *Mirror) WriteSessionStatus(sess *types.Session) error {
	dir := m.sessionDir(sess.ID)
	if err := m.ensureDir(dir); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, "status.json"), sess)
}

// WriteCheckpoint overwrites sessions/<id>/checkpoint.json, or removes it
// when cp is nil (no outstanding checkpoint).
func (m *Mirror) WriteCheckpoint(sessionID string, cp *types.Checkpoint) error {
	dir := m.sessionDir(sessionID)
	if err := m.ensureDir(dir); err != nil {
		return err
	}
	path := filepath.Join(dir, "checkpoint.json")
	if cp == nil {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		return nil
	}
	return writeJSONFile(path, cp)
}

// WriteCheckpointResponse overwrites sessions/<id>/checkpoint_response.json.
func (m *Mirror) WriteCheckpointResponse(sessionID string, om *types.OrchestratorMessage) error {
	dir := m.sessionDir(sessionID)
	if err := m.ensureDir(dir); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, "checkpoint_response.json"), om)
}

// WriteResult overwrites sessions/<id>/result.json once a session reaches a
// terminal status.
func (m *Mirror) WriteResult(sess *types.Session) error {
	dir := m.sessionDir(sess.ID)
	if err := m.ensureDir(dir); err != nil {
		return err
	}
	return writeJSONFile(filepath.Join(dir, "result.json"), sess)
}
