package dialog

import (
	"strings"
)

// FreeFormInvitation is appended to the first question of an intake only.
const FreeFormInvitation = " You may also describe symptoms which are not on the list of options, and I'll try my best to understand."

// maxListed is the index of the last factor read out; later ones are not offered.
const maxListed = 2

// Question builds the spoken question for one dialog entry.
//
//	1 factor:   "{prefix} {f0}?"
//	2 factors:  "{prefix} {f0}, or {f1}?"
//	3+ factors: "{prefix} {f0}, {f1}, or {f2}?"
func Question(prefix string, factors []string, first bool) string {
	lowered := Lower(factors)

	var b strings.Builder
	b.WriteString(prefix)

	last := min(maxListed, len(lowered)-1)
	switch {
	case last < 0:
		b.WriteString("?")
	case last == 0:
		b.WriteString(" ")
		b.WriteString(lowered[0])
		b.WriteString("?")
	default:
		b.WriteString(" ")
		b.WriteString(strings.Join(lowered[:last], ", "))
		b.WriteString(", or ")
		b.WriteString(lowered[last])
		b.WriteString("?")
	}

	if first {
		b.WriteString(FreeFormInvitation)
	}
	return b.String()
}

// Lower returns a lower-cased copy of factors.
func Lower(factors []string) []string {
	out := make([]string, len(factors))
	for i, f := range factors {
		out[i] = strings.ToLower(f)
	}
	return out
}
