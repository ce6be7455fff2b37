package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		tail     string
		wantWait bool
		wantKind Kind
	}{
		{"plain progress output", "Compiling module...\nDone in 3.2s\n", false, ""},
		{"empty", "", false, ""},
		{"numbered menu", "Pick an action:\n1. Run tests\n2. Deploy\n3. Cancel\n", true, KindMenu},
		{"permission question", "Allow this command to write to /etc/hosts?\n", true, KindPermission},
		{"yes no prompt", "Proceed with migration (y/n)?\n", true, KindPermission},
		{"continue prompt", "Continue?\n", true, KindContinue},
		{"press enter", "Press Enter to continue\n", true, KindContinue},
		{"generic colon prompt", "Enter your API key:", true, KindPrompt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDetector().Classify([]byte(tt.tail))
			assert.Equal(t, tt.wantWait, got.Waiting)
			if tt.wantWait {
				assert.Equal(t, tt.wantKind, got.Kind)
			}
		})
	}
}

func TestClassifyMenuRequiresTwoOptions(t *testing.T) {
	got := NewDetector().Classify([]byte("Step 1. Building artifact\n"))
	assert.False(t, got.Waiting)
}

func TestClassifySpinnerWithoutCompleteMarkerIsNotWaiting(t *testing.T) {
	got := NewDetector().Classify([]byte("Building... ⠋\n"))
	assert.False(t, got.Waiting)
}

func TestClassifyAsciiSpinnerLineIsNotWaiting(t *testing.T) {
	got := NewDetector().Classify([]byte("Working\n-\n"))
	assert.False(t, got.Waiting)
}

func TestClassifySpinnerWithCompleteMarkerStillEvaluatesPrompt(t *testing.T) {
	got := NewDetector().Classify([]byte("Done ⠋\nEnter your API key:"))
	assert.True(t, got.Waiting, "a work-complete marker alongside the spinner glyph must not suppress classification")
}

func TestClassifyWorkCompletePlusPromptReusesPriorIntent(t *testing.T) {
	d := NewDetector()

	first := d.Classify([]byte("Allow this command to write to /etc/hosts?\n"))
	assert.True(t, first.Waiting)
	assert.Equal(t, KindPermission, first.Kind)

	second := d.Classify([]byte("Done.\nRun again?"))
	assert.True(t, second.Waiting)
	assert.Equal(t, KindPermission, second.Kind, "work-complete marker plus prompt carries forward the previously classified intent")
	assert.Equal(t, string(KindPermission), second.Intent)
}

func TestClassifyWorkCompletePlusPromptWithNoPriorIntentIsUnknown(t *testing.T) {
	d := NewDetector()
	got := d.Classify([]byte("All tests passed\nRun again?"))
	assert.True(t, got.Waiting)
	assert.Equal(t, KindUnknown, got.Kind)
}
