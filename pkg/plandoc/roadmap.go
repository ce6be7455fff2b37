package plandoc

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// HasVerificationDoc reports whether a VERIFICATION.md sibling exists next
// to a plan document at planPath.
func HasVerificationDoc(planPath string) bool {
	_, err := os.Stat(filepath.Join(filepath.Dir(planPath), "VERIFICATION.md"))
	return err == nil
}

// RoadmapFrontMatter is the front matter a project's ROADMAP.md carries:
// the declared phase count and, optionally, a human title per phase.
type RoadmapFrontMatter struct {
	Phases []RoadmapPhase `yaml:"phases"`
}

// RoadmapPhase names one phase entry in a roadmap.
type RoadmapPhase struct {
	Number int    `yaml:"number"`
	Title  string `yaml:"title"`
}

// ParseRoadmap extracts and decodes the front matter of a ROADMAP.md file.
func ParseRoadmap(path string) (*RoadmapFrontMatter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, err := extractFrontMatter(data)
	if err != nil {
		return nil, err
	}
	var rm RoadmapFrontMatter
	if err := yaml.Unmarshal(block, &rm); err != nil {
		return nil, err
	}
	return &rm, nil
}
