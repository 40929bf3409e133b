package chathub

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"djchat/backend/internal/config"
	"djchat/backend/internal/models"

	"golang.org/x/sync/errgroup"
)

// MessageStore is the durable side: the source of truth for history.
type MessageStore interface {
	FetchHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	Insert(ctx context.Context, conversationID, senderID, content string) (models.Message, error)
}

// InsertSubscriber is implemented by stores that push rows written by other
// devices. Sessions use it when available.
type InsertSubscriber interface {
	SubscribeToInserts(ctx context.Context, conversationID string, onInsert func(models.Message)) (func(), error)
}

// Transport is the low-latency side: best effort, unordered, not persisted.
type Transport interface {
	Subscribe(ctx context.Context, conversationID string, onMessage, onTyping func(models.BroadcastEvent)) (func(), error)
	PublishMessage(ctx context.Context, ev models.BroadcastEvent) error
	PublishTyping(ctx context.Context, ev models.BroadcastEvent) error
}

// IdentityProvider tells the session who the local user is.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

type SessionState string

const (
	StateUnopened SessionState = "unopened"
	StateOpening  SessionState = "opening"
	StateActive   SessionState = "active"
	StateClosed   SessionState = "closed"
)

// View is everything the presentation layer renders.
type View struct {
	ConversationID string           `json:"conversation_id"`
	Status         SessionState     `json:"status"`
	Messages       []models.Message `json:"messages"`
	PeerTyping     bool             `json:"peer_typing"`
	TypingUserIDs  []string         `json:"typing_user_ids,omitempty"`
	// Draft is the text of the last send whose store write failed, handed
	// back for editing. The next Send clears it.
	Draft string `json:"draft,omitempty"`
	Error string `json:"error,omitempty"`
}

// Session controls one open conversation. It owns the Engine and applies
// every mutation on a single event loop goroutine, so merges never
// interleave. Once closed, late callbacks are dropped.
type Session struct {
	cfg       config.ChatConfig
	store     MessageStore
	transport Transport
	identity  IdentityProvider
	recorder  Recorder
	now       func() time.Time
	engineOps []EngineOption

	mu             sync.Mutex
	state          SessionState
	running        bool
	conversationID string
	userID         string
	unsubscribers  []func()

	ctx    context.Context
	cancel context.CancelFunc

	ops       chan func()
	done      chan struct{}
	closeOnce sync.Once
	views     chan View

	// Loop-owned.
	engine   *Engine
	deferred []func()
	typing   map[string]time.Time
	drafts   map[string]string
	failures map[string]*writeFailure
	draft    string
	draftFor string
	lastErr  string
}

// writeFailure is a failed store write whose draft is restored once its
// entry shows as failed.
type writeFailure struct {
	content string
	err     error
	shown   bool
}

type SessionOption func(*Session)

// WithSessionClock replaces time.Now for the session and its engine.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
		s.engineOps = append(s.engineOps, WithClock(now))
	}
}

// WithEngineOptions passes options through to the engine built by Open.
func WithEngineOptions(opts ...EngineOption) SessionOption {
	return func(s *Session) { s.engineOps = append(s.engineOps, opts...) }
}

// WithRecorder attaches delivery metrics.
func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) {
		if r != nil {
			s.recorder = r
		}
	}
}

func NewSession(cfg config.ChatConfig, store MessageStore, transport Transport, identity IdentityProvider, opts ...SessionOption) *Session {
	s := &Session{
		cfg:       cfg.WithDefaults(),
		store:     store,
		transport: transport,
		identity:  identity,
		recorder:  noopRecorder{},
		now:       time.Now,
		state:     StateUnopened,
		ops:       make(chan func(), config.SessionEventBuffer),
		done:      make(chan struct{}),
		views:     make(chan View, config.ViewBuffer),
		typing:    make(map[string]time.Time),
		drafts:    make(map[string]string),
		failures:  make(map[string]*writeFailure),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConversationID is empty until Open is called.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Views delivers the latest View after every change. Only the newest view is
// kept if the reader falls behind. The channel is closed after the final
// closed-status view.
func (s *Session) Views() <-chan View {
	return s.views
}

// Open loads history and subscribes to the transport concurrently. Broadcasts
// arriving before the history is seeded are held back and applied after it.
// A history failure closes the session and returns *HistoryLoadError;
// transport failures only degrade live delivery.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	if s.state != StateUnopened {
		s.mu.Unlock()
		return ErrAlreadyOpened
	}
	s.state = StateOpening
	s.conversationID = conversationID
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	userID, err := s.identity.CurrentUserID(ctx)
	if err != nil {
		s.Close()
		return err
	}
	s.userID = userID
	s.engine = NewEngine(conversationID, userID, s.cfg.DedupWindow, s.engineOps...)

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.running = true
	s.mu.Unlock()
	go s.run()
	s.recorder.SessionOpened()

	var history []models.Message
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := s.store.FetchHistory(gctx, conversationID, s.cfg.HistoryLimit)
		if err != nil {
			return &HistoryLoadError{ConversationID: conversationID, Err: err}
		}
		history = h
		return nil
	})
	g.Go(func() error {
		unsubscribe, err := s.transport.Subscribe(s.ctx, conversationID, s.onBroadcast, s.onTyping)
		if err != nil {
			log.Printf("WARNING: live delivery unavailable for conversation %s: %v", conversationID, err)
			return nil
		}
		s.addUnsubscriber(unsubscribe)
		return nil
	})
	if sub, ok := s.store.(InsertSubscriber); ok {
		g.Go(func() error {
			unsubscribe, err := sub.SubscribeToInserts(s.ctx, conversationID, s.onStoreInsert)
			if err != nil {
				log.Printf("WARNING: insert push unavailable for conversation %s: %v", conversationID, err)
				return nil
			}
			s.addUnsubscriber(unsubscribe)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("ERROR: %v", err)
		s.Close()
		return err
	}

	return s.do(func() error {
		if s.State() != StateOpening {
			return ErrSessionClosed
		}
		s.engine.Seed(history)
		s.setState(StateActive)
		for _, apply := range s.deferred {
			apply()
		}
		s.deferred = nil
		s.emit()
		return nil
	})
}

// Send inserts content optimistically and returns its temp id right away.
// The broadcast publish and the store write then run concurrently; their
// outcomes arrive later through the View.
func (s *Session) Send(content string) (string, error) {
	var pending models.Message
	err := s.do(func() error {
		if s.State() != StateActive {
			return ErrNotOpen
		}
		tempID, err := s.engine.InsertOptimistic(content, s.userID)
		if err != nil {
			return err
		}
		pending, _ = s.engine.Lookup(tempID)
		s.drafts[tempID] = content
		s.draft = ""
		s.draftFor = ""
		s.lastErr = ""
		s.emit()
		return nil
	})
	if err != nil {
		return "", err
	}
	s.dispatch(pending)
	return pending.TempID, nil
}

// Retry re-sends a failed message under its original temp id.
func (s *Session) Retry(tempID string) error {
	var pending models.Message
	err := s.do(func() error {
		if s.State() != StateActive {
			return ErrNotOpen
		}
		if _, err := s.engine.PrepareRetry(tempID); err != nil {
			return err
		}
		pending, _ = s.engine.Lookup(tempID)
		delete(s.failures, tempID)
		s.draft = ""
		s.draftFor = ""
		s.lastErr = ""
		s.emit()
		return nil
	})
	if err != nil {
		return err
	}
	s.dispatch(pending)
	return nil
}

// Discard removes a failed message.
func (s *Session) Discard(tempID string) error {
	return s.do(func() error {
		if s.State() != StateActive {
			return ErrNotOpen
		}
		if err := s.engine.Discard(tempID); err != nil {
			return err
		}
		delete(s.drafts, tempID)
		delete(s.failures, tempID)
		s.clearDraft(tempID)
		s.emit()
		return nil
	})
}

// SetTyping publishes the local typing flag. Best effort: no record, no
// acknowledgment, no retry.
func (s *Session) SetTyping(isTyping bool) error {
	if s.State() != StateActive {
		return ErrNotOpen
	}
	ev := models.BroadcastEvent{
		Kind:           models.EventTyping,
		ConversationID: s.ConversationID(),
		SenderID:       s.userID,
		IsTyping:       isTyping,
		CreatedAt:      s.now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.StoreWriteTimeout)
		defer cancel()
		if err := s.transport.PublishTyping(ctx, ev); err != nil {
			log.Printf("WARNING: %v", &TransportPublishError{ConversationID: ev.ConversationID, Err: err})
		}
	}()
	return nil
}

// Snapshot returns the ordered message list.
func (s *Session) Snapshot() ([]models.Message, error) {
	var out []models.Message
	err := s.do(func() error {
		if s.engine == nil {
			return ErrNotOpen
		}
		out = s.engine.Snapshot()
		return nil
	})
	return out, err
}

// View returns the current view.
func (s *Session) View() (View, error) {
	var v View
	err := s.do(func() error {
		v = s.buildView()
		return nil
	})
	return v, err
}

// Close unsubscribes both transports and discards the engine. In-flight
// store writes still finish but their results are dropped. Close is
// idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasRunning := s.running
	s.state = StateClosed
	unsubscribers := s.unsubscribers
	s.unsubscribers = nil
	cancel := s.cancel
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.done) })
	if cancel != nil {
		cancel()
	}
	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}
	if wasRunning {
		s.recorder.SessionClosed()
	} else {
		close(s.views)
	}
}

func (s *Session) run() {
	sweep := s.cfg.TypingTTL / 2
	if sweep < 100*time.Millisecond {
		sweep = 100 * time.Millisecond
	}
	ticker := time.NewTicker(sweep)
	defer func() {
		ticker.Stop()
		s.engine = nil
		s.deferred = nil
		s.emitClosed()
		close(s.views)
	}()

	for {
		select {
		case <-s.done:
			return
		case op := <-s.ops:
			select {
			case <-s.done:
				return
			default:
			}
			op()
		case <-ticker.C:
			s.expireTyping()
		}
	}
}

// do runs op on the event loop and waits for it.
func (s *Session) do(op func() error) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return ErrNotOpen
	}
	result := make(chan error, 1)
	select {
	case s.ops <- func() { result <- op() }:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// post queues op on the event loop without waiting. Dropped after close.
func (s *Session) post(op func()) {
	select {
	case s.ops <- op:
	case <-s.done:
	}
}

func (s *Session) onBroadcast(ev models.BroadcastEvent) {
	s.post(func() {
		apply := func() {
			result := s.engine.ApplyBroadcastEvent(ev)
			s.recorder.BroadcastReceived(result)
			if _, ok := s.typing[ev.SenderID]; ok {
				delete(s.typing, ev.SenderID)
				s.emit()
				return
			}
			if result == BroadcastApplied {
				s.emit()
			}
		}
		switch s.State() {
		case StateOpening:
			s.deferred = append(s.deferred, apply)
		case StateActive:
			apply()
		}
	})
}

func (s *Session) onTyping(ev models.BroadcastEvent) {
	s.post(func() {
		if s.State() == StateClosed || ev.SenderID == s.userID {
			return
		}
		if ev.IsTyping {
			s.typing[ev.SenderID] = s.now().Add(s.cfg.TypingTTL)
		} else {
			delete(s.typing, ev.SenderID)
		}
		s.emit()
	})
}

func (s *Session) onStoreInsert(m models.Message) {
	s.post(func() {
		apply := func() {
			tempID, changed := s.engine.ApplyStoreInsert(m)
			if !changed {
				return
			}
			if tempID != "" {
				// The row may still turn out to be a twin's, so the failure
				// stays on file and can be shown again.
				delete(s.drafts, tempID)
				if f := s.failures[tempID]; f != nil {
					f.shown = false
				}
				s.clearDraft(tempID)
			}
			s.emit()
		}
		switch s.State() {
		case StateOpening:
			s.deferred = append(s.deferred, apply)
		case StateActive:
			apply()
		}
	})
}

// dispatch fires the publish and the store write for a pending message.
func (s *Session) dispatch(m models.Message) {
	conversationID := s.ConversationID()

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.StoreWriteTimeout)
		defer cancel()
		ev := models.BroadcastEvent{
			Kind:           models.EventMessage,
			ConversationID: conversationID,
			SenderID:       m.SenderID,
			Content:        m.Content,
			CreatedAt:      m.CreatedAt,
		}
		if err := s.transport.PublishMessage(ctx, ev); err != nil {
			log.Printf("WARNING: %v", &TransportPublishError{ConversationID: conversationID, Err: err})
			s.recorder.PublishFailed()
		}
	}()

	go s.writeToStore(conversationID, m)
}

type storeResult struct {
	msg models.Message
	err error
}

// writeToStore is bounded by StoreWriteTimeout even if the store ignores its
// context. It is not cancelled by Close.
func (s *Session) writeToStore(conversationID string, m models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StoreWriteTimeout)
	defer cancel()

	done := make(chan storeResult, 1)
	go func() {
		rec, err := s.store.Insert(ctx, conversationID, m.SenderID, m.Content)
		done <- storeResult{msg: rec, err: err}
	}()

	var res storeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		werr := &StoreWriteError{
			TempID:  m.TempID,
			Timeout: errors.Is(res.err, context.DeadlineExceeded),
			Err:     res.err,
		}
		log.Printf("ERROR: %v", werr)
		s.post(func() {
			if s.State() == StateClosed {
				return
			}
			if err := s.engine.ApplyStoreFailure(m.TempID); err != nil {
				return
			}
			content := s.drafts[m.TempID]
			if content == "" {
				content = m.Content
			}
			s.failures[m.TempID] = &writeFailure{content: content, err: werr}
			s.showFailures()
			if werr.Timeout {
				s.recorder.MessageDelivered(OutcomeTimeout)
			} else {
				s.recorder.MessageDelivered(OutcomeFailed)
			}
			s.emit()
		})
		return
	}

	s.post(func() {
		if s.State() == StateClosed {
			return
		}
		if err := s.engine.ApplyStoreConfirmation(m.TempID, res.msg); err != nil {
			return
		}
		delete(s.drafts, m.TempID)
		delete(s.failures, m.TempID)
		s.clearDraft(m.TempID)
		// The confirmation may have taken its row back from a twin whose own
		// write failed.
		s.showFailures()
		s.recorder.MessageDelivered(OutcomeConfirmed)
		s.emit()
	})
}

// showFailures restores the draft and error of every failed write whose
// entry is now in the failed state and has not been shown yet.
func (s *Session) showFailures() {
	for tempID, f := range s.failures {
		if f.shown {
			continue
		}
		m, ok := s.engine.Lookup(tempID)
		if !ok {
			delete(s.failures, tempID)
			continue
		}
		if m.DeliveryState != models.StateFailed {
			continue
		}
		f.shown = true
		s.draft = f.content
		s.draftFor = tempID
		s.lastErr = f.err.Error()
	}
}

// clearDraft drops the draft and error if they belong to tempID.
func (s *Session) clearDraft(tempID string) {
	if s.draftFor != tempID {
		return
	}
	s.draft = ""
	s.draftFor = ""
	s.lastErr = ""
}

func (s *Session) expireTyping() {
	if len(s.typing) == 0 {
		return
	}
	now := s.now()
	changed := false
	for userID, until := range s.typing {
		if !now.Before(until) {
			delete(s.typing, userID)
			changed = true
		}
	}
	if changed {
		s.emit()
	}
}

func (s *Session) buildView() View {
	v := View{
		ConversationID: s.ConversationID(),
		Status:         s.State(),
		Draft:          s.draft,
		Error:          s.lastErr,
	}
	if s.engine != nil {
		v.Messages = s.engine.Snapshot()
	}
	for userID := range s.typing {
		v.TypingUserIDs = append(v.TypingUserIDs, userID)
	}
	slices.Sort(v.TypingUserIDs)
	v.PeerTyping = len(v.TypingUserIDs) > 0
	return v
}

// emit publishes the current view, replacing an unread older one.
func (s *Session) emit() {
	s.offer(s.buildView())
}

func (s *Session) emitClosed() {
	s.offer(View{ConversationID: s.ConversationID(), Status: StateClosed})
}

func (s *Session) offer(v View) {
	select {
	case s.views <- v:
		return
	default:
	}
	select {
	case <-s.views:
	default:
	}
	select {
	case s.views <- v:
	default:
	}
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = state
	}
}

func (s *Session) addUnsubscriber(unsubscribe func()) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		unsubscribe()
		return
	}
	s.unsubscribers = append(s.unsubscribers, unsubscribe)
	s.mu.Unlock()
}
