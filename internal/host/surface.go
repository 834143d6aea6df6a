// Package host connects the skill to the voice assistant: speech out,
// answers in, and the GUI screen on the robot.
package host

import (
	"context"
	"strings"
)

type Fill string

const FillPreserveAspectFit Fill = "PreserveAspectFit"

type ImageView struct {
	Path    string
	Title   string
	Caption string
	Fill    Fill
	// OverrideIdle keeps the page on screen for this many seconds before the
	// host may return to its idle screen.
	OverrideIdle int
}

// Surface is everything a flow may do with the voice host.
type Surface interface {
	Speak(ctx context.Context, text string) error
	// AskYesNo returns "yes", "no", the raw answer when it is neither, or ""
	// when the user said nothing.
	AskYesNo(ctx context.Context, prompt string) (string, error)
	// GetResponse speaks prompt and returns the next utterance. When nothing
	// is heard before the response timeout, onFail is spoken (unless blank)
	// and "" is returned with a nil error.
	GetResponse(ctx context.Context, prompt, onFail string) (string, error)
	ShowImage(ctx context.Context, view ImageView) error
	ShowText(ctx context.Context, text string) error
	Clear(ctx context.Context) error
}

// Intent is a recognised command routed to the skill.
type Intent struct {
	Name string
	Data map[string]string
}

func (i Intent) Get(key string) string {
	if i.Data == nil {
		return ""
	}
	return strings.TrimSpace(i.Data[key])
}

var (
	yesWords = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "please do", "go ahead", "affirmative", "of course"}
	noWords  = []string{"no", "nope", "don't", "do not", "not now", "negative", "cancel"}
)

// NormalizeYesNo maps an answer onto "yes" or "no" when it clearly is one.
// Negative phrases win over affirmative ones ("yes, but not now" is no).
func NormalizeYesNo(answer string) string {
	a := strings.ToLower(strings.TrimSpace(answer))
	if a == "" {
		return ""
	}
	padded := " " + strings.NewReplacer(",", " ", ".", " ", "!", " ", "?", " ").Replace(a) + " "
	for _, w := range noWords {
		if strings.Contains(padded, " "+w+" ") {
			return "no"
		}
	}
	for _, w := range yesWords {
		if strings.Contains(padded, " "+w+" ") {
			return "yes"
		}
	}
	return a
}
