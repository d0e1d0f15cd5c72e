package stream

// RiskyDetector scans text fragments for evidence of destructive operations.
// It is intentionally heuristic: case-insensitive pattern matches over plain
// text, no shell parsing. Fragments are scanned as they arrive, not buffered.
type RiskyDetector struct {
	lib *PatternLibrary
}

// NewRiskyDetector creates a detector over the given library.
func NewRiskyDetector(lib *PatternLibrary) *RiskyDetector {
	return &RiskyDetector{lib: lib}
}

// DetectFirst evaluates the library top to bottom and returns the first
// matching rule, or nil if nothing matches. Library order is significant:
// more specific rules precede broader ones that could shadow them.
func (d *RiskyDetector) DetectFirst(text string) *RiskyDetection {
	clean := StripANSI(text)
	for _, p := range d.lib.Risky() {
		if m := p.re.FindString(clean); m != "" {
			return &RiskyDetection{Pattern: p, Matched: m}
		}
	}
	return nil
}

// DetectAll returns every matching rule in library order. This is meant for
// diagnostics and tests; the UI surfaces only the first match.
func (d *RiskyDetector) DetectAll(text string) []RiskyDetection {
	clean := StripANSI(text)
	var out []RiskyDetection
	for _, p := range d.lib.Risky() {
		if m := p.re.FindString(clean); m != "" {
			out = append(out, RiskyDetection{Pattern: p, Matched: m})
		}
	}
	return out
}
