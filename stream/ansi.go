package stream

import "regexp"

// ansiRegex matches CSI sequences (ESC [ ... letter) and OSC sequences
// (ESC ] ... BEL or ESC ] ... ESC \), which cover everything the wrapped
// agents emit in practice.
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)`)

// StripANSI removes ANSI escape codes from text. A partial escape sequence at
// the end of a chunk is left in place; it is harmless to the line-oriented
// matchers downstream and completes on the next chunk.
func StripANSI(text string) string {
	return ansiRegex.ReplaceAllString(text, "")
}
