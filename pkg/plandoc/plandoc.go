// Package plandoc parses PLAN and ROADMAP documents: Markdown files carrying
// a YAML front-matter block that declares a plan's dependencies, file sets,
// autonomy, and verification manifest.
package plandoc

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sandoak/gsdharness/pkg/types"
)

// FrontMatter is the YAML block a PLAN document carries between `---`
// fences at the top of the file.
type FrontMatter struct {
	PlanID        PlanRef                 `yaml:"plan_id"`
	DependsOn     []PlanRef               `yaml:"depends_on"`
	FilesRead     []string                `yaml:"files_read"`
	FilesModified []string                `yaml:"files_modified"`
	Checkpoints   []string                `yaml:"checkpoints"`
	Autonomous    bool                    `yaml:"autonomous"`
	Verification  VerificationFrontMatter `yaml:"verification"`
}

// PlanRef is the (phase, plan) coordinate as it appears in front matter,
// written "3-2" for phase 3 plan 2.
type PlanRef struct {
	Phase int
	Plan  int
}

// UnmarshalYAML parses a "phase-plan" scalar into a PlanRef.
func (p *PlanRef) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	var phase, plan int
	if _, err := fmt.Sscanf(s, "%d-%d", &phase, &plan); err != nil {
		return fmt.Errorf("parse plan ref %q: %w", s, err)
	}
	p.Phase, p.Plan = phase, plan
	return nil
}

func (p PlanRef) toPlanID() types.PlanID { return types.PlanID{Phase: p.Phase, Plan: p.Plan} }

// VerificationFrontMatter is the raw YAML shape of a plan's verification
// manifest.
type VerificationFrontMatter struct {
	MustPass   []types.VerificationSpec `yaml:"must_pass"`
	ShouldPass []types.VerificationSpec `yaml:"should_pass"`
}

// ParseFile reads a PLAN document at path and returns its front matter.
func ParseFile(path string) (*FrontMatter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan document %s: %w", path, err)
	}
	return Parse(data)
}

// Parse extracts and decodes the YAML front matter of a PLAN document.
func Parse(data []byte) (*FrontMatter, error) {
	block, err := extractFrontMatter(data)
	if err != nil {
		return nil, err
	}
	var fm FrontMatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, fmt.Errorf("decode plan front matter: %w", err)
	}
	return &fm, nil
}

// ToPlan builds a types.Plan skeleton (status PlanPlanned) for project from
// parsed front matter.
func (fm *FrontMatter) ToPlan(project string) *types.Plan {
	depends := make([]types.PlanID, 0, len(fm.DependsOn))
	for _, d := range fm.DependsOn {
		depends = append(depends, d.toPlanID())
	}
	return &types.Plan{
		Project:      project,
		Phase:        fm.PlanID.Phase,
		Plan:         fm.PlanID.Plan,
		Status:       types.PlanPlanned,
		DependsOn:    depends,
		FilesWritten: fm.FilesModified,
		FilesRead:    fm.FilesRead,
		Autonomous:   fm.Autonomous,
		Manifest: types.VerificationManifest{
			MustPass:   fm.Verification.MustPass,
			ShouldPass: fm.Verification.ShouldPass,
		},
	}
}

const fence = "---"

func extractFrontMatter(data []byte) ([]byte, error) {
	text := string(data)
	text = strings.TrimLeft(text, "\r\n\t ")
	if !strings.HasPrefix(text, fence) {
		return nil, fmt.Errorf("document does not start with a %q front-matter fence", fence)
	}
	rest := text[len(fence):]
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return nil, fmt.Errorf("unterminated front-matter block")
	}
	return []byte(rest[:end]), nil
}
