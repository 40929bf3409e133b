package chathub

import (
	"slices"
	"strings"
	"time"

	"djchat/backend/internal/models"

	"github.com/google/uuid"
)

// BroadcastResult says what ApplyBroadcastEvent did with an event.
type BroadcastResult string

const (
	BroadcastApplied   BroadcastResult = "applied"
	BroadcastDuplicate BroadcastResult = "duplicate"
	BroadcastEcho      BroadcastResult = "echo"
	BroadcastIgnored   BroadcastResult = "ignored"
)

// Engine holds the ordered message list of one conversation and merges
// optimistic inserts, broadcast events and store results into it.
//
// The list is always sorted by (CreatedAt, Seq). Engine is not safe for
// concurrent use; Session serializes every call on its event loop.
type Engine struct {
	conversationID string
	currentUserID  string
	dedupWindow    time.Duration

	now   func() time.Time
	newID func() string

	seq      uint64
	messages []models.Message

	// writeFailed holds temp ids whose last store write failed, including
	// entries adopted by a pushed row since.
	writeFailed map[string]bool
}

type EngineOption func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the uuid temp id generator.
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(conversationID, currentUserID string, dedupWindow time.Duration, opts ...EngineOption) *Engine {
	e := &Engine{
		conversationID: conversationID,
		currentUserID:  currentUserID,
		dedupWindow:    dedupWindow,
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
		writeFailed:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Seed adds the initial history page as confirmed store messages.
func (e *Engine) Seed(history []models.Message) {
	for _, m := range history {
		if m.ID != "" && e.indexByID(m.ID) >= 0 {
			continue
		}
		m.ConversationID = e.conversationID
		m.DeliveryState = models.StateConfirmed
		m.Origin = models.OriginStore
		m.TempID = ""
		e.append(m)
	}
}

// InsertOptimistic appends a pending own message and returns its temp id.
func (e *Engine) InsertOptimistic(content, senderID string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrValidation
	}
	if senderID == "" {
		senderID = e.currentUserID
	}

	tempID := e.newID()
	e.append(models.Message{
		ID:             tempID,
		TempID:         tempID,
		ConversationID: e.conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      e.now(),
		DeliveryState:  models.StatePending,
		Origin:         models.OriginLocal,
	})
	return tempID, nil
}

// ApplyBroadcastEvent merges a low-latency message event. Own echoes and
// events already represented in the list leave it untouched.
func (e *Engine) ApplyBroadcastEvent(ev models.BroadcastEvent) BroadcastResult {
	if ev.Kind != models.EventMessage || ev.ConversationID != e.conversationID {
		return BroadcastIgnored
	}
	if ev.SenderID == e.currentUserID {
		return BroadcastEcho
	}

	content := strings.TrimSpace(ev.Content)
	if content == "" {
		return BroadcastIgnored
	}
	if ev.ID != "" && e.indexByID(ev.ID) >= 0 {
		return BroadcastDuplicate
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = e.now()
	}
	if e.findMatch(ev.SenderID, content, createdAt, nil) >= 0 {
		return BroadcastDuplicate
	}

	id := ev.ID
	if id == "" {
		id = e.newID()
	}
	e.append(models.Message{
		ID:             id,
		ConversationID: e.conversationID,
		SenderID:       ev.SenderID,
		Content:        content,
		CreatedAt:      createdAt,
		DeliveryState:  models.StateConfirmed,
		Origin:         models.OriginBroadcast,
	})
	return BroadcastApplied
}

// ApplyStoreConfirmation turns the optimistic message tempID into the durable
// record: id substitution, confirmed state and the store's timestamp. The
// store wins on content as well.
func (e *Engine) ApplyStoreConfirmation(tempID string, record models.Message) error {
	idx := e.indexByTempID(tempID)
	if idx < 0 {
		return ErrUnknownMessage
	}

	if record.ID != "" {
		if other := e.indexByID(record.ID); other >= 0 && other != idx {
			e.releaseID(other)
			idx = e.indexByTempID(tempID)
		}
	}

	delete(e.writeFailed, tempID)
	m := &e.messages[idx]
	if record.ID != "" {
		m.ID = record.ID
	}
	if content := strings.TrimSpace(record.Content); content != "" {
		m.Content = content
	}
	if !record.CreatedAt.IsZero() {
		m.CreatedAt = record.CreatedAt
	}
	m.DeliveryState = models.StateConfirmed
	m.Origin = models.OriginStore
	e.sort()
	return nil
}

// ApplyStoreFailure marks the pending message tempID as failed. It is kept
// in the list for retry. A confirmed message is never downgraded, but the
// failure is remembered in case its adopted row turns out to be another
// write's.
func (e *Engine) ApplyStoreFailure(tempID string) error {
	idx := e.indexByTempID(tempID)
	if idx < 0 {
		return ErrUnknownMessage
	}
	e.writeFailed[tempID] = true
	if e.messages[idx].DeliveryState == models.StatePending {
		e.messages[idx].DeliveryState = models.StateFailed
	}
	return nil
}

// ApplyStoreInsert merges a row pushed by the durable store. It reports
// whether the list changed and, when the row confirmed an own optimistic
// entry, that entry's temp id.
func (e *Engine) ApplyStoreInsert(record models.Message) (string, bool) {
	if record.ConversationID != e.conversationID || record.ID == "" {
		return "", false
	}
	if e.indexByID(record.ID) >= 0 {
		return "", false
	}
	content := strings.TrimSpace(record.Content)

	// Own optimistic entry whose write this row is.
	own := e.findMatch(record.SenderID, content, record.CreatedAt, func(m models.Message) bool {
		return m.Origin == models.OriginLocal && m.DeliveryState != models.StateConfirmed
	})
	if own >= 0 {
		tempID := e.messages[own].TempID
		e.confirmAt(own, record, content)
		return tempID, true
	}

	// Broadcast-only entry: the store copy replaces it.
	seen := e.findMatch(record.SenderID, content, record.CreatedAt, func(m models.Message) bool {
		return m.Origin == models.OriginBroadcast
	})
	if seen >= 0 {
		e.confirmAt(seen, record, content)
		return "", true
	}

	record.Content = content
	record.TempID = ""
	record.DeliveryState = models.StateConfirmed
	record.Origin = models.OriginStore
	e.append(record)
	return "", true
}

// PrepareRetry puts a failed message back to pending with a fresh timestamp
// and returns its content for re-dispatch.
func (e *Engine) PrepareRetry(tempID string) (string, error) {
	idx := e.indexByTempID(tempID)
	if idx < 0 {
		return "", ErrUnknownMessage
	}
	m := &e.messages[idx]
	if m.DeliveryState != models.StateFailed {
		return "", ErrNotFailed
	}
	delete(e.writeFailed, tempID)
	m.ID = m.TempID
	m.DeliveryState = models.StatePending
	m.Origin = models.OriginLocal
	m.CreatedAt = e.now()
	content := m.Content
	e.sort()
	return content, nil
}

// Discard drops a failed message from the list.
func (e *Engine) Discard(tempID string) error {
	idx := e.indexByTempID(tempID)
	if idx < 0 {
		return ErrUnknownMessage
	}
	if e.messages[idx].DeliveryState != models.StateFailed {
		return ErrNotFailed
	}
	delete(e.writeFailed, tempID)
	e.messages = slices.Delete(e.messages, idx, idx+1)
	return nil
}

// Snapshot returns a copy of the list ordered by createdAt, then insertion.
func (e *Engine) Snapshot() []models.Message {
	return slices.Clone(e.messages)
}

// Pending returns the temp ids still waiting for the store.
func (e *Engine) Pending() []string {
	var ids []string
	for _, m := range e.messages {
		if m.DeliveryState == models.StatePending {
			ids = append(ids, m.TempID)
		}
	}
	return ids
}

// Lookup finds a message by temp id.
func (e *Engine) Lookup(tempID string) (models.Message, bool) {
	idx := e.indexByTempID(tempID)
	if idx < 0 {
		return models.Message{}, false
	}
	return e.messages[idx], true
}

func (e *Engine) confirmAt(idx int, record models.Message, content string) {
	m := &e.messages[idx]
	m.ID = record.ID
	if content != "" {
		m.Content = content
	}
	if !record.CreatedAt.IsZero() {
		m.CreatedAt = record.CreatedAt
	}
	m.DeliveryState = models.StateConfirmed
	m.Origin = models.OriginStore
	e.sort()
}

// releaseID resolves a durable id held by the wrong entry. An optimistic
// entry adopted by mistake goes back under its temp id: failed if its own
// write already failed, pending otherwise. Any other entry is the same
// durable row and is dropped.
func (e *Engine) releaseID(idx int) {
	m := &e.messages[idx]
	if m.TempID != "" {
		m.ID = m.TempID
		m.DeliveryState = models.StatePending
		if e.writeFailed[m.TempID] {
			m.DeliveryState = models.StateFailed
		}
		m.Origin = models.OriginLocal
		return
	}
	e.messages = slices.Delete(e.messages, idx, idx+1)
}

func (e *Engine) append(m models.Message) {
	e.seq++
	m.Seq = e.seq
	e.messages = append(e.messages, m)
	e.sort()
}

func (e *Engine) sort() {
	slices.SortStableFunc(e.messages, func(a, b models.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
}

// findMatch returns the first entry from senderID with the same trimmed
// content whose timestamp lies within the dedup window of at.
func (e *Engine) findMatch(senderID, content string, at time.Time, keep func(models.Message) bool) int {
	for i, m := range e.messages {
		if m.SenderID != senderID || m.Content != content {
			continue
		}
		if keep != nil && !keep(m) {
			continue
		}
		if absDuration(m.CreatedAt.Sub(at)) <= e.dedupWindow {
			return i
		}
	}
	return -1
}

func (e *Engine) indexByID(id string) int {
	return slices.IndexFunc(e.messages, func(m models.Message) bool { return m.ID == id })
}

func (e *Engine) indexByTempID(tempID string) int {
	if tempID == "" {
		return -1
	}
	return slices.IndexFunc(e.messages, func(m models.Message) bool { return m.TempID == tempID })
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
