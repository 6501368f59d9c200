package memory

import "sync"

// Conversation is the conversational state of one session: a bounded
// window of recent exchanges plus the full transcript. Both are always
// mutated together under the same lock.
type Conversation struct {
	mu         sync.RWMutex
	window     *Window
	transcript *Transcript
	windowSize int // fixed at construction
}

// NewConversation creates an empty conversation with the given window size.
// A non-positive size falls back to DefaultWindowSize.
func NewConversation(windowSize int) *Conversation {
	w := NewWindow(windowSize)
	return &Conversation{
		window:     w,
		transcript: &Transcript{},
		windowSize: w.Cap(),
	}
}

// AddExchange appends a question/answer pair to the window and the transcript.
func (c *Conversation) AddExchange(question, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(question, answer)
}

func (c *Conversation) appendLocked(question, answer string) {
	c.window.Append(question, answer)
	c.transcript.Append(question, answer)
}

// History returns a copy of the recent-exchange window, oldest first.
func (c *Conversation) History() []Exchange {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.Snapshot()
}

// Transcript returns a copy of the full transcript.
func (c *Conversation) Transcript() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transcript.Snapshot()
}

// IsFollowUp reports whether a new question depends on prior turns,
// i.e. whether the window holds any exchange.
func (c *Conversation) IsFollowUp() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.Len() > 0
}

// Reset clears the window and the transcript.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window.Clear()
	c.transcript.Clear()
}

// LoadHistory replaces all state with the exchanges reconstructed from
// client-supplied items. Malformed items are skipped and listed in the
// returned report; reconstruction never fails. An empty slice is
// equivalent to Reset.
func (c *Conversation) LoadHistory(items []RawHistoryItem) LoadReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window.Clear()
	c.transcript.Clear()
	return pairHistory(items, c.appendLocked)
}

// Len returns the current window and transcript lengths.
func (c *Conversation) Len() (window, transcript int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.Len(), c.transcript.Len()
}

// WindowSize returns the window capacity.
func (c *Conversation) WindowSize() int {
	return c.windowSize
}
