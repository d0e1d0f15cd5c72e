package stream

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// BlockType is the semantic type of a classified output block.
type BlockType string

const (
	BlockThinking      BlockType = "thinking"
	BlockCode          BlockType = "code"
	BlockTool          BlockType = "tool"
	BlockToolOutput    BlockType = "tool_output"
	BlockQuestion      BlockType = "question"
	BlockError         BlockType = "error"
	BlockText          BlockType = "text"
	BlockFileContent   BlockType = "file_content"
	BlockDiff          BlockType = "diff"
	BlockCommand       BlockType = "command"
	BlockCommandOutput BlockType = "command_output"
)

// Block is a classified, contiguous unit of output. IDs increase
// monotonically within a tab and are never reused. A block accumulates
// content while open; once Complete flips true it is never mutated again.
type Block struct {
	ID   int64     `json:"id"`
	Type BlockType `json:"type"`

	// Type-specific payload. Only the fields relevant to Type are set.
	ToolName string `json:"tool_name,omitempty"`
	Language string `json:"language,omitempty"`
	Path     string `json:"path,omitempty"`
	Command  string `json:"command,omitempty"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Success  bool   `json:"success,omitempty"`

	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Complete  bool      `json:"complete"`
	// CollapsedDefault is the classifier's rendering hint: verbose low-signal
	// blocks default to collapsed, short high-signal ones do not. Computed
	// when the block closes.
	CollapsedDefault bool `json:"collapsed_default"`
}

// Lines returns the number of content lines.
func (b *Block) Lines() int {
	if b.Content == "" {
		return 0
	}
	return strings.Count(b.Content, "\n") + 1
}

// BlockEventKind says what happened to a block.
type BlockEventKind int

const (
	BlockOpened BlockEventKind = iota
	BlockUpdated
	BlockClosed
)

// BlockEvent is one upsert in the classifier's output sequence.
type BlockEvent struct {
	Kind  BlockEventKind
	Block Block
}

// collapseThreshold is the content length, in lines, past which a collapsible
// block defaults to collapsed.
const collapseThreshold = 10

// Line cues, checked in order. Tool invocations may be prefixed by the
// agent's bullet glyphs.
var (
	toolCallRegex   = regexp.MustCompile(`^[✻✽●◐◑✢·⏺]?\s*(Read|Edit|Write|Bash|Glob|Grep|Task|WebFetch|WebSearch|TodoWrite)\((.*?)\)`)
	fileHeaderRegex = regexp.MustCompile(`^(?:📄\s*)?File:\s+(\S+)`)
	commandRegex    = regexp.MustCompile(`^[$>]\s+(\S.*)`)
	questionPrefixes = []string{
		"Do you want", "Would you like", "Should I", "Can I", "May I",
	}
	errorPrefixes    = []string{"Error:", "error:", "Failed:", "FAIL:"}
	thinkingPrefixes = []string{
		"Thinking", "Let me ", "I'll ", "I will ", "Analyzing ", "Looking at ",
	}
)

// Classifier segments a live output stream into typed blocks. It buffers only
// the current partial line and the currently open block: once a boundary to a
// new block is detected, the previous block is closed and never touched again.
//
// Classification is deterministic: feeding the same chunk sequence to a fresh
// instance yields the same event sequence.
type Classifier struct {
	mu sync.Mutex

	emit func(BlockEvent)
	now  func() time.Time

	nextID    int64
	pending   string // partial line awaiting its newline
	inFence   bool
	fenceLang string
	current   *Block
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithClassifierClock replaces the wall clock, for tests.
func WithClassifierClock(now func() time.Time) ClassifierOption {
	return func(c *Classifier) { c.now = now }
}

// NewClassifier creates a classifier that delivers block events to emit.
// emit is called synchronously, in order, from whichever goroutine calls
// Feed; it must not call back into the classifier.
func NewClassifier(emit func(BlockEvent), opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		emit: emit,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Feed processes one chunk of output. Chunk boundaries carry no meaning: a
// line, a fence marker, or an escape sequence may be split across chunks and
// is reassembled here.
func (c *Classifier) Feed(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending += StripANSI(chunk)

	for {
		idx := strings.IndexAny(c.pending, "\r\n")
		if idx < 0 {
			break
		}
		// A CR at the very end of the buffer may be half of a CRLF pair
		// split across chunks; hold it until the next chunk arrives.
		if c.pending[idx] == '\r' && idx == len(c.pending)-1 {
			break
		}
		line := c.pending[:idx]
		rest := c.pending[idx+1:]
		// Swallow the LF of a CRLF pair.
		if c.pending[idx] == '\r' && strings.HasPrefix(rest, "\n") {
			rest = rest[1:]
		}
		c.pending = rest
		c.processLine(line)
	}

	// A bare closing fence often arrives without a trailing newline when it
	// is the last thing the agent prints. Treat it as complete so the code
	// block closes as soon as the fence is seen.
	if c.inFence && strings.TrimSpace(c.pending) == "```" {
		c.pending = ""
		c.processLine("```")
	}
}

// Flush closes any open block. Call when the tab's session ends; an
// unterminated fence or trailing prose is closed implicitly rather than lost.
func (c *Classifier) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCurrent()
	c.inFence = false
	c.fenceLang = ""
	c.pending = ""
}

func (c *Classifier) processLine(line string) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "```") {
		if c.inFence {
			c.closeCurrent()
			c.inFence = false
			c.fenceLang = ""
		} else {
			c.closeCurrent()
			c.inFence = true
			c.fenceLang = strings.TrimPrefix(trimmed, "```")
			b := c.openBlock(BlockCode)
			b.Language = c.fenceLang
		}
		return
	}

	if c.inFence {
		// Everything inside a fence belongs to the code block verbatim,
		// including blank lines.
		c.appendLine(line)
		return
	}

	if trimmed == "" {
		// Blank lines between prose blocks are dropped; they are not a
		// boundary on their own.
		return
	}

	typ, payload := classifyLine(trimmed)

	// An open command block turns following plain text into its output.
	if typ == BlockText && c.current != nil &&
		(c.current.Type == BlockCommand || c.current.Type == BlockCommandOutput) {
		if c.current.Type == BlockCommand {
			c.closeCurrent()
			c.openBlock(BlockCommandOutput)
		}
		c.appendLine(trimmed)
		return
	}

	if c.current == nil || c.current.Type != typ {
		c.closeCurrent()
		b := c.openBlock(typ)
		payload(b)
	}
	c.appendLine(trimmed)
}

// classifyLine maps one line to a block type plus a payload setter. The cue
// order follows signal strength: explicit tool markers first, prose last.
func classifyLine(trimmed string) (BlockType, func(*Block)) {
	if m := toolCallRegex.FindStringSubmatch(trimmed); m != nil {
		name := m[1]
		return BlockTool, func(b *Block) { b.ToolName = name }
	}

	if m := fileHeaderRegex.FindStringSubmatch(trimmed); m != nil {
		path := m[1]
		return BlockFileContent, func(b *Block) { b.Path = path }
	}

	for _, p := range errorPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return BlockError, func(*Block) {}
		}
	}
	if strings.ContainsAny(trimmed, "✗") || strings.Contains(trimmed, "❌") {
		return BlockError, func(*Block) {}
	}

	if strings.ContainsAny(trimmed, "✓✔") || strings.Contains(trimmed, "✅") {
		return BlockToolOutput, func(b *Block) { b.Success = true }
	}

	if strings.HasSuffix(trimmed, "?") {
		return BlockQuestion, func(*Block) {}
	}
	for _, p := range questionPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return BlockQuestion, func(*Block) {}
		}
	}

	if isDiffLine(trimmed) {
		return BlockDiff, func(*Block) {}
	}

	if m := commandRegex.FindStringSubmatch(trimmed); m != nil {
		cmd := m[1]
		return BlockCommand, func(b *Block) { b.Command = cmd }
	}

	for _, p := range thinkingPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return BlockThinking, func(*Block) {}
		}
	}

	return BlockText, func(*Block) {}
}

func isDiffLine(trimmed string) bool {
	if strings.HasPrefix(trimmed, "+++") ||
		strings.HasPrefix(trimmed, "---") ||
		strings.HasPrefix(trimmed, "@@") {
		return true
	}
	if strings.HasPrefix(trimmed, "+") && !strings.HasPrefix(trimmed, "++") {
		return true
	}
	if strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "--") {
		return true
	}
	return false
}

func (c *Classifier) openBlock(typ BlockType) *Block {
	c.nextID++
	c.current = &Block{
		ID:        c.nextID,
		Type:      typ,
		CreatedAt: c.now(),
	}
	c.emitEvent(BlockOpened)
	return c.current
}

func (c *Classifier) appendLine(line string) {
	if c.current == nil {
		return
	}
	if c.current.Content != "" {
		c.current.Content += "\n"
	}
	c.current.Content += line
	c.emitEvent(BlockUpdated)
}

func (c *Classifier) closeCurrent() {
	if c.current == nil {
		return
	}
	c.current.Complete = true
	c.current.CollapsedDefault = collapsedByDefault(c.current)
	c.emitEvent(BlockClosed)
	c.current = nil
}

// collapsedByDefault marks verbose low-signal types as collapsed once they
// grow past the threshold. Questions and errors always stay expanded.
func collapsedByDefault(b *Block) bool {
	switch b.Type {
	case BlockCode, BlockToolOutput, BlockCommandOutput, BlockFileContent:
		return b.Lines() > collapseThreshold
	default:
		return false
	}
}

func (c *Classifier) emitEvent(kind BlockEventKind) {
	if c.emit == nil || c.current == nil {
		return
	}
	c.emit(BlockEvent{Kind: kind, Block: *c.current})
}
