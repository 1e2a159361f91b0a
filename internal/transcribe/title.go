package transcribe

import "strings"

const (
	DefaultTitleWords = 5
	UntitledNote      = "Nota sin título"
)

// DeriveTitle returns the first maxWords words of text, with "..." appended
// when the text is longer.
func DeriveTitle(text string, maxWords int) string {
	if maxWords <= 0 {
		maxWords = DefaultTitleWords
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return UntitledNote
	}
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
