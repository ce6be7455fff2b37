package plandoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandoak/gsdharness/pkg/types"
)

const samplePlan = `---
plan_id: "3-2"
depends_on:
  - "3-1"
  - "2-4"
files_read:
  - "internal/scheduler/scheduler.go"
files_modified:
  - "internal/scheduler/admission.go"
checkpoints:
  - "after design review"
autonomous: false
verification:
  must_pass:
    - name: "unit tests"
      kind: "shell"
      spec: "go test ./..."
  should_pass:
    - name: "lint"
      kind: "shell"
      spec: "golangci-lint run"
---

# Plan 3-2: Admission rewrite
`

func TestParseFrontMatter(t *testing.T) {
	fm, err := Parse([]byte(samplePlan))
	require.NoError(t, err)

	require.Equal(t, 3, fm.PlanID.Phase)
	require.Equal(t, 2, fm.PlanID.Plan)
	require.Len(t, fm.DependsOn, 2)
	require.Equal(t, types.PlanID{Phase: 3, Plan: 1}, fm.DependsOn[0].toPlanID())
	require.Equal(t, types.PlanID{Phase: 2, Plan: 4}, fm.DependsOn[1].toPlanID())
	require.False(t, fm.Autonomous)
	require.Len(t, fm.Verification.MustPass, 1)
	require.Equal(t, "unit tests", fm.Verification.MustPass[0].Name)
}

func TestToPlan(t *testing.T) {
	fm, err := Parse([]byte(samplePlan))
	require.NoError(t, err)

	plan := fm.ToPlan("acme")
	require.Equal(t, "acme", plan.Project)
	require.Equal(t, types.PlanPlanned, plan.Status)
	require.Equal(t, []string{"internal/scheduler/admission.go"}, plan.FilesWritten)
	require.Len(t, plan.DependsOn, 2)
}

func TestParseFileMissingFence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "PLAN.md")
	require.NoError(t, os.WriteFile(path, []byte("# no front matter here"), 0o644))

	_, err := ParseFile(path)
	require.Error(t, err)
}

func TestHasVerificationDoc(t *testing.T) {
	dir := t.TempDir()
	planPath := filepath.Join(dir, "PLAN.md")
	require.NoError(t, os.WriteFile(planPath, []byte(samplePlan), 0o644))
	require.False(t, HasVerificationDoc(planPath))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERIFICATION.md"), []byte("# checks"), 0o644))
	require.True(t, HasVerificationDoc(planPath))
}
