package plandoc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScannedPlan is one PLAN document discovered under a project's spec
// directory, together with whether its phase has a VERIFICATION.md.
type ScannedPlan struct {
	Path        string
	FrontMatter *FrontMatter
	Phase       int
	Verified    bool
}

// Scan walks specDir's phase subdirectories for "NN-MM-PLAN.md" files and
// parses each one's front matter. A phase directory's VERIFICATION.md marks
// every plan discovered in it as Verified — the sync operation's only
// signal for promoting a plan past executed without an explicit
// mark_phase_verified call.
func Scan(specDir string) ([]*ScannedPlan, error) {
	entries, err := os.ReadDir(specDir)
	if err != nil {
		return nil, fmt.Errorf("read spec dir %s: %w", specDir, err)
	}

	var out []*ScannedPlan
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		phaseDir := filepath.Join(specDir, entry.Name())
		verified := HasVerificationDoc(filepath.Join(phaseDir, "placeholder-PLAN.md"))

		planFiles, err := os.ReadDir(phaseDir)
		if err != nil {
			return nil, fmt.Errorf("read phase dir %s: %w", phaseDir, err)
		}
		for _, pf := range planFiles {
			if pf.IsDir() || !strings.HasSuffix(strings.ToUpper(pf.Name()), "-PLAN.MD") {
				continue
			}
			path := filepath.Join(phaseDir, pf.Name())
			fm, err := ParseFile(path)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			out = append(out, &ScannedPlan{
				Path:        path,
				FrontMatter: fm,
				Phase:       fm.PlanID.Phase,
				Verified:    verified,
			})
		}
	}
	return out, nil
}
