// Package stream implements the terminal session interpretation layer: it
// turns the raw byte stream of a wrapped interactive agent into a command
// lifecycle state machine, typed semantic blocks, and risky-operation
// detections. All components are per-tab and process chunks strictly in
// arrival order; parse problems are absorbed, never returned.
package stream

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Severity classifies how destructive a risky pattern is.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// RiskyPattern is one immutable rule of the pattern library: a case-insensitive
// regular expression over plain (ANSI-stripped) text, with a severity, a
// one-line reason, and a suggested mitigation.
type RiskyPattern struct {
	Name       string   `json:"name"`
	Pattern    string   `json:"pattern"`
	Severity   Severity `json:"severity"`
	Reason     string   `json:"reason"`
	Mitigation string   `json:"mitigation"`

	re *regexp.Regexp
}

// RiskyDetection pairs a pattern with the literal substring that matched.
type RiskyDetection struct {
	Pattern RiskyPattern `json:"pattern"`
	Matched string       `json:"matched"`
}

// defaultRiskyPatterns is the built-in rule table. Order matters: rules are
// evaluated top to bottom and the first match wins, so more specific rules
// must precede broader ones that could shadow them ("delete all" before any
// generic delete phrasing, volume removal before generic docker removal).
var defaultRiskyPatterns = []RiskyPattern{
	{
		Name:       "recursive-remove",
		Pattern:    `rm\s+(-[a-z]*[rf][a-z]*\s+)+`,
		Severity:   SeverityDanger,
		Reason:     "Recursive or forced removal can delete entire directory trees",
		Mitigation: "Double-check the target path, or create a snapshot first",
	},
	{
		Name:       "remove-directory",
		Pattern:    `rmdir\s+`,
		Severity:   SeverityWarning,
		Reason:     "Directory removal",
		Mitigation: "Make sure the directory is no longer needed",
	},
	{
		Name:       "git-hard-reset",
		Pattern:    `git\s+reset\s+--hard`,
		Severity:   SeverityDanger,
		Reason:     "Hard reset will discard changes",
		Mitigation: "Stash or commit your work before resetting",
	},
	{
		Name:       "git-force-checkout",
		Pattern:    `git\s+checkout\s+(--force|-f)\b`,
		Severity:   SeverityDanger,
		Reason:     "Forced checkout discards local modifications",
		Mitigation: "Stash your changes before switching",
	},
	{
		Name:       "git-clean",
		Pattern:    `git\s+clean\s+-[a-z]*f`,
		Severity:   SeverityDanger,
		Reason:     "git clean permanently deletes untracked files",
		Mitigation: "Run with -n first to preview what would be removed",
	},
	{
		Name:       "git-stash-drop",
		Pattern:    `git\s+stash\s+(drop|clear)`,
		Severity:   SeverityDanger,
		Reason:     "Dropped stashes are hard to recover",
		Mitigation: "Apply the stash to a branch instead of dropping it",
	},
	{
		Name:       "git-force-push",
		Pattern:    `git\s+push\s+[^\n]*(--force\b|-f\b)`,
		Severity:   SeverityDanger,
		Reason:     "Force push rewrites remote history",
		Mitigation: "Prefer --force-with-lease, and warn collaborators",
	},
	{
		Name:       "git-rebase",
		Pattern:    `git\s+rebase\b`,
		Severity:   SeverityDanger,
		Reason:     "Rebase rewrites commit history",
		Mitigation: "Create a backup branch before rebasing",
	},
	{
		Name:       "db-drop",
		Pattern:    `drop\s+(database|table|schema)\b`,
		Severity:   SeverityDanger,
		Reason:     "Dropping a database object destroys its data",
		Mitigation: "Take a database backup before dropping",
	},
	{
		Name:       "db-truncate",
		Pattern:    `truncate\s+table\b`,
		Severity:   SeverityDanger,
		Reason:     "Truncate removes every row in the table",
		Mitigation: "Export the table contents before truncating",
	},
	{
		Name:       "package-uninstall",
		Pattern:    `((npm|yarn|pnpm)\s+(uninstall|remove|prune)|pip3?\s+uninstall|cargo\s+uninstall|apt(-get)?\s+(remove|purge)|brew\s+(uninstall|remove))\b`,
		Severity:   SeverityWarning,
		Reason:     "Package removal may break the project toolchain",
		Mitigation: "Confirm nothing in the project depends on the package",
	},
	{
		Name:       "build-clean",
		Pattern:    `((npm|yarn|pnpm)\s+run\s+clean|make\s+clean|cargo\s+clean|gradle\s+clean|go\s+clean)\b`,
		Severity:   SeverityWarning,
		Reason:     "Build clean removes generated artifacts",
		Mitigation: "Expect the next build to take longer",
	},
	{
		Name:       "docker-volume-remove",
		Pattern:    `docker\s+volume\s+(rm|prune)\b`,
		Severity:   SeverityDanger,
		Reason:     "Removing volumes destroys container data",
		Mitigation: "Back up volume contents before removing",
	},
	{
		Name:       "docker-remove",
		Pattern:    `docker\s+(rm|rmi|system\s+prune|image\s+prune|container\s+prune)\b`,
		Severity:   SeverityWarning,
		Reason:     "Container or image removal",
		Mitigation: "Images can be rebuilt, but confirm nothing running depends on them",
	},
	{
		Name:       "phrase-delete-everything",
		Pattern:    `delete\s+(all|everything)\b`,
		Severity:   SeverityDanger,
		Reason:     "Bulk deletion requested in plain language",
		Mitigation: "Create a snapshot before letting the agent proceed",
	},
	{
		Name:       "phrase-bulk-rewrite",
		Pattern:    `(refactor\s+(the\s+)?(whole|entire|all)|rewrite\s+(the\s+)?entire)\b`,
		Severity:   SeverityWarning,
		Reason:     "Bulk rewrite touches large parts of the codebase",
		Mitigation: "Create a snapshot so you can compare or roll back",
	},
	{
		Name:       "phrase-start-over",
		Pattern:    `start\s+(over|fresh|from\s+scratch)\b`,
		Severity:   SeverityWarning,
		Reason:     "Starting over may discard the current approach entirely",
		Mitigation: "Snapshot the current state before starting over",
	},
}

// defaultPromptPatterns recognize a shell waiting for input at the end of an
// ANSI-stripped output chunk. Ordered for documentation clarity; the patterns
// are disjoint in practice. The glyph entries cover starship and oh-my-zsh.
var defaultPromptPatterns = []string{
	`\$\s*$`,
	`%\s*$`,
	`#\s*$`,
	`>\s*$`,
	`❯\s*$`,
	`➜\s*$`,
}

// PatternLibrary is the immutable, ordered set of risky-operation rules and
// prompt-boundary patterns. It is safe to share by reference across tabs.
type PatternLibrary struct {
	risky   []RiskyPattern
	prompts []*regexp.Regexp
}

// DefaultLibrary returns the compiled built-in pattern library.
func DefaultLibrary() *PatternLibrary {
	return newLibrary(defaultRiskyPatterns)
}

// LoadLibrary reads a JSON array of risky rules from path and returns a
// library containing those rules in file order. Rules with patterns that do
// not compile are skipped rather than failing the load, so a bad entry in a
// user-maintained file cannot take the detector down.
func LoadLibrary(path string) (*PatternLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}
	var rules []RiskyPattern
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file: %w", err)
	}
	return newLibrary(rules), nil
}

func newLibrary(rules []RiskyPattern) *PatternLibrary {
	lib := &PatternLibrary{}
	for _, r := range rules {
		re, err := regexp.Compile(`(?i)` + r.Pattern)
		if err != nil {
			continue
		}
		r.re = re
		lib.risky = append(lib.risky, r)
	}
	for _, p := range defaultPromptPatterns {
		lib.prompts = append(lib.prompts, regexp.MustCompile(p))
	}
	return lib
}

// Risky returns the ordered risky rules.
func (l *PatternLibrary) Risky() []RiskyPattern {
	return l.risky
}

// PromptPatterns returns the compiled prompt-boundary patterns.
func (l *PatternLibrary) PromptPatterns() []*regexp.Regexp {
	return l.prompts
}
