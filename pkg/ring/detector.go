package ring

import (
	"bytes"
	"regexp"
	"sync"
)

// Kind is the category of interactive wait a Classification reports.
type Kind string

const (
	KindMenu       Kind = "menu"
	KindPrompt     Kind = "prompt"
	KindPermission Kind = "permission"
	KindContinue   Kind = "continue"
	KindUnknown    Kind = "unknown"
)

// Classification is the result of running the Detector over a tail of
// recent output: either the session is making progress, or it is blocked
// waiting on a specific kind of input.
type Classification struct {
	Waiting        bool
	Kind           Kind
	OptionCount    int
	TriggerSnippet string
	Intent         string
}

var notWaiting = Classification{Waiting: false}

// patterns are checked in order; the first match wins. They are heuristic by
// design — the wait detector trades false negatives (staying "not waiting"
// a beat too long) for simplicity, since a missed wait state self-corrects
// on the next output poll.
var (
	reMenuOption       = regexp.MustCompile(`(?m)^\s*(?:[❯>]\s*)?\d+[.)]\s+\S`)
	rePermission       = regexp.MustCompile(`(?i)(allow|permit|grant)\b.*\?\s*$`)
	reYesNo            = regexp.MustCompile(`(?i)\(y(?:es)?/n(?:o)?\)\s*\??\s*$`)
	rePressEnter       = regexp.MustCompile(`(?i)press (enter|return|any key)`)
	reContinuePrompt   = regexp.MustCompile(`(?i)continue\?\s*$`)
	reGenericPrompt    = regexp.MustCompile(`[:?]\s*$`)
	reBrailleSpinner   = regexp.MustCompile(`[\x{2800}-\x{28FF}]`)
	reAsciiSpinnerLine = regexp.MustCompile(`^\s*[-\\|/]\s*$`)
	reWorkComplete     = regexp.MustCompile(`(?i)(✓|✔|✅|\bdone\b|\bcompleted?\b|\bfinished\b|\ball (?:tests|checks) passed\b)`)
)

// Detector holds the wait-state classification across successive polls of
// one session's output. It is stateful only in the one place the heuristics
// require it: when a work-complete marker appears alongside a trailing
// prompt, the session is reported waiting on whatever intent it was last
// classified with, rather than a fresh guess.
type Detector struct {
	mu   sync.Mutex
	last Classification
}

// NewDetector returns a Detector with no prior classification.
func NewDetector() *Detector {
	return &Detector{}
}

// Classify inspects the trailing window of a session's combined output and
// returns whether the child appears blocked waiting for operator input.
//
// Classify is line-oriented: it looks only at tail, never at history, so a
// session that resolves its own prompt (e.g. a spinner that finishes) is
// reclassified as not-waiting on the very next poll with no separate "clear"
// signal required — except where a work-complete marker is itself part of
// the heuristic (see reWorkComplete below).
func (d *Detector) Classify(tail []byte) Classification {
	d.mu.Lock()
	defer d.mu.Unlock()

	trimmed := bytes.TrimRight(tail, "\n\r\t ")
	if len(trimmed) == 0 {
		return notWaiting
	}

	lastLine := lastNonEmptyLine(trimmed)
	if lastLine == "" {
		return notWaiting
	}

	hasComplete := reWorkComplete.Match(trimmed)
	hasSpinner := reBrailleSpinner.Match(trimmed) || reAsciiSpinnerLine.MatchString(lastLine)
	if hasSpinner && !hasComplete {
		return notWaiting
	}

	var result Classification
	switch {
	case countMenuOptions(trimmed) >= 2:
		result = Classification{Waiting: true, Kind: KindMenu, OptionCount: countMenuOptions(trimmed), TriggerSnippet: lastLine}
	case rePermission.MatchString(lastLine), reYesNo.MatchString(lastLine):
		result = Classification{Waiting: true, Kind: KindPermission, TriggerSnippet: lastLine}
	case reContinuePrompt.MatchString(lastLine), rePressEnter.MatchString(lastLine):
		result = Classification{Waiting: true, Kind: KindContinue, TriggerSnippet: lastLine}
	case hasComplete && reGenericPrompt.MatchString(lastLine):
		intent := d.priorIntent()
		result = Classification{Waiting: true, Kind: intent, TriggerSnippet: lastLine, Intent: string(intent)}
	case reGenericPrompt.MatchString(lastLine):
		result = Classification{Waiting: true, Kind: KindPrompt, TriggerSnippet: lastLine}
	default:
		result = notWaiting
	}

	if result.Waiting {
		d.last = result
	}
	return result
}

// priorIntent returns the Kind of the most recent waiting classification, or
// KindUnknown if the session has never been observed waiting before.
func (d *Detector) priorIntent() Kind {
	if d.last.Waiting {
		return d.last.Kind
	}
	return KindUnknown
}

func lastNonEmptyLine(b []byte) string {
	lines := bytes.Split(b, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 {
			return string(line)
		}
	}
	return ""
}

func countMenuOptions(b []byte) int {
	matches := reMenuOption.FindAll(b, -1)
	return len(matches)
}
