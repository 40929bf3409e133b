package storage

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"djchat/backend/internal/models"

	"github.com/lib/pq"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// InsertListener holds one LISTEN connection and fans inserted rows out to
// per-conversation subscribers. Each notice is loaded once, whatever the
// number of subscribers, and off the goroutine draining the connection.
type InsertListener struct {
	listener *pq.Listener
	load     func(ctx context.Context, id uint) (models.Message, bool, error)

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(models.Message)
}

// NewInsertListener opens the LISTEN connection on InsertChannel.
func NewInsertListener(dsn string) (*InsertListener, error) {
	l := pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("WARNING: insert listener event %d: %v", ev, err)
		}
	})
	if err := l.Listen(InsertChannel); err != nil {
		l.Close()
		return nil, err
	}
	return &InsertListener{
		listener: l,
		subs:     make(map[string]map[int]func(models.Message)),
	}, nil
}

// Run dispatches notifications until ctx is done, then closes the connection.
func (l *InsertListener) Run(ctx context.Context) {
	defer l.listener.Close()
	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.listener.Notify:
			if n == nil {
				// Reconnected; notifications sent while down are lost and the
				// broadcast path covers the gap.
				continue
			}
			l.dispatch(ctx, n.Extra)
		case <-ping.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					log.Printf("WARNING: insert listener ping: %v", err)
				}
			}()
		}
	}
}

// Subscribe registers fn for rows inserted into conversationID.
func (l *InsertListener) Subscribe(conversationID string, fn func(models.Message)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	if l.subs[conversationID] == nil {
		l.subs[conversationID] = make(map[int]func(models.Message))
	}
	l.subs[conversationID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[conversationID], id)
			if len(l.subs[conversationID]) == 0 {
				delete(l.subs, conversationID)
			}
		})
	}
}

func (l *InsertListener) dispatch(ctx context.Context, payload string) {
	var n insertNotice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		log.Printf("WARNING: bad insert notice %q: %v", payload, err)
		return
	}

	l.mu.RLock()
	fns := make([]func(models.Message), 0, len(l.subs[n.ConversationID]))
	for _, fn := range l.subs[n.ConversationID] {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	if len(fns) == 0 || l.load == nil {
		return
	}

	go func() {
		msg, ok, err := l.load(ctx, n.ID)
		if err != nil {
			log.Printf("ERROR: Failed to load inserted message %d: %v", n.ID, err)
			return
		}
		if !ok {
			return
		}
		for _, fn := range fns {
			fn(msg)
		}
	}()
}
