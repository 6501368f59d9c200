// Package memory provides session-scoped conversational memory.
//
// Information Hiding:
// - Ring buffer layout of the recent-exchange window hidden behind Window
// - Transcript storage hidden behind Transcript
// - Conversation keeps both in sync under a single lock
//
// Window and Transcript are not safe for concurrent use on their own;
// Conversation is the concurrency boundary.
package memory

// DefaultWindowSize is used when a non-positive window size is requested.
const DefaultWindowSize = 5

// Exchange is one user question paired with the answer it received.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Record is one transcript entry.
type Record struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Window is a bounded FIFO buffer of the most recent exchanges.
type Window struct {
	buf  []Exchange
	head int // index of the oldest exchange
	n    int
}

// NewWindow creates a window holding at most size exchanges.
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{buf: make([]Exchange, size)}
}

// Append adds an exchange at the tail, evicting the oldest one when full.
func (w *Window) Append(question, answer string) {
	ex := Exchange{Question: question, Answer: answer}
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = ex
		w.n++
		return
	}
	w.buf[w.head] = ex
	w.head = (w.head + 1) % len(w.buf)
}

// Snapshot returns a copy of the window, oldest first.
func (w *Window) Snapshot() []Exchange {
	out := make([]Exchange, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Clear empties the window.
func (w *Window) Clear() {
	for i := range w.buf {
		w.buf[i] = Exchange{}
	}
	w.head = 0
	w.n = 0
}

// Len returns the number of exchanges currently held.
func (w *Window) Len() int {
	return w.n
}

// Cap returns the maximum number of exchanges the window holds.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Transcript is the unbounded, append-only log of a session's exchanges.
type Transcript struct {
	records []Record
}

// Append adds a record at the tail.
func (t *Transcript) Append(question, answer string) {
	t.records = append(t.records, Record{User: question, Assistant: answer})
}

// Snapshot returns a copy of every record in order.
// Returns an empty slice (not nil) when the transcript is empty.
func (t *Transcript) Snapshot() []Record {
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.records = nil
}

// Len returns the number of records.
func (t *Transcript) Len() int {
	return len(t.records)
}
