package chathub_test

import (
	"context"
	"strconv"
	"sync"
	"time"

	"djchat/backend/internal/chathub"
	"djchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStore is a testify mock of chathub.MessageStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) FetchHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, conversationID, senderID, content string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	return args.Get(0).(models.Message), args.Error(1)
}

// pushingStore adds the durable-side insert push to MockStore.
type pushingStore struct {
	*MockStore

	mu       sync.Mutex
	onInsert func(models.Message)
}

func (s *pushingStore) SubscribeToInserts(_ context.Context, _ string, onInsert func(models.Message)) (func(), error) {
	s.mu.Lock()
	s.onInsert = onInsert
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.onInsert = nil
		s.mu.Unlock()
	}, nil
}

func (s *pushingStore) push(m models.Message) {
	s.mu.Lock()
	onInsert := s.onInsert
	s.mu.Unlock()
	if onInsert != nil {
		onInsert(m)
	}
}

// fakeTransport captures the subscription callbacks so tests can play the
// role of the broadcast server.
type fakeTransport struct {
	mu           sync.Mutex
	onMessage    func(models.BroadcastEvent)
	onTyping     func(models.BroadcastEvent)
	published    []models.BroadcastEvent
	typing       []models.BroadcastEvent
	subscribeErr error
	publishErr   error
	unsubscribed bool
}

func (f *fakeTransport) Subscribe(_ context.Context, _ string, onMessage, onTyping func(models.BroadcastEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.onMessage = onMessage
	f.onTyping = onTyping
	return func() {
		f.mu.Lock()
		f.unsubscribed = true
		f.onMessage = nil
		f.onTyping = nil
		f.mu.Unlock()
	}, nil
}

func (f *fakeTransport) PublishMessage(_ context.Context, ev models.BroadcastEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ev)
	return f.publishErr
}

func (f *fakeTransport) PublishTyping(_ context.Context, ev models.BroadcastEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, ev)
	return f.publishErr
}

func (f *fakeTransport) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onMessage != nil
}

func (f *fakeTransport) deliver(ev models.BroadcastEvent) {
	f.mu.Lock()
	onMessage := f.onMessage
	f.mu.Unlock()
	if onMessage != nil {
		onMessage(ev)
	}
}

func (f *fakeTransport) deliverTyping(ev models.BroadcastEvent) {
	f.mu.Lock()
	onTyping := f.onTyping
	f.mu.Unlock()
	if onTyping != nil {
		onTyping(ev)
	}
}

func (f *fakeTransport) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeTransport) typingEvents() []models.BroadcastEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.BroadcastEvent(nil), f.typing...)
}

type staticIdentity string

func (id staticIdentity) CurrentUserID(context.Context) (string, error) {
	return string(id), nil
}

// fakeRecorder counts recorder callbacks.
type fakeRecorder struct {
	mu         sync.Mutex
	opened     int
	closed     int
	outcomes   []string
	broadcasts []chathub.BroadcastResult
	pubFails   int
}

func (r *fakeRecorder) SessionOpened() {
	r.mu.Lock()
	r.opened++
	r.mu.Unlock()
}

func (r *fakeRecorder) SessionClosed() {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
}

func (r *fakeRecorder) MessageDelivered(outcome string) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func (r *fakeRecorder) BroadcastReceived(result chathub.BroadcastResult) {
	r.mu.Lock()
	r.broadcasts = append(r.broadcasts, result)
	r.mu.Unlock()
}

func (r *fakeRecorder) PublishFailed() {
	r.mu.Lock()
	r.pubFails++
	r.mu.Unlock()
}

func (r *fakeRecorder) deliveries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func (r *fakeRecorder) counts() (opened, closed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened, r.closed
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sequentialIDs returns tmp-1, tmp-2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "tmp-" + strconv.Itoa(n)
	}
}
