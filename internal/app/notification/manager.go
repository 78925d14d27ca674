// Package notification broadcasts now-playing notifications to subscribers.
package notification

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/tunedeck/internal/app/playback"
)

// Stream receives notifications for one subscriber. A Send error ends the
// subscription.
type Stream interface {
	Send(*Notification) error
}

// Manager fans notifications out to subscribers. Sequence numbers are
// shared by all subscribers so gaps reveal dropped messages.
type Manager struct {
	mu      sync.RWMutex
	streams map[string]Stream

	seq         atomic.Uint64
	sendTimeout time.Duration
}

// NewManager creates a manager with a 500ms per-send timeout.
func NewManager() *Manager {
	return &Manager{
		streams:     make(map[string]Stream),
		sendTimeout: 500 * time.Millisecond,
	}
}

// Subscribe registers stream and returns its subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	id := uuid.NewString()

	m.mu.Lock()
	m.streams[id] = stream
	m.mu.Unlock()

	zlog.Debug().Msgf("notification: subscribed %s", id)
	return id
}

// Unsubscribe removes a subscription. Unknown IDs are ignored.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	delete(m.streams, subscriptionID)
	m.mu.Unlock()
}

// Broadcast stamps the next sequence number on n and delivers it to every
// subscriber concurrently, returning once each delivery finished or timed
// out. Subscribers whose Send fails are dropped; slow ones are kept.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.seq.Add(1)

	m.mu.RLock()
	targets := maps.Clone(m.streams)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for id, stream := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.deliver(stream, n); err != nil {
				if errors.Is(err, errSendTimeout) {
					zlog.Debug().Msgf("notification: send to %s timed out", id)
					return
				}
				zlog.Debug().Msgf("notification: dropping subscriber %s: %v", id, err)
				m.Unsubscribe(id)
			}
		}()
	}
	wg.Wait()
}

var errSendTimeout = errors.New("send timed out")

// deliver runs stream.Send, giving up after the send timeout. An abandoned
// Send keeps running in its goroutine until the stream unblocks.
func (m *Manager) deliver(stream Stream, n *Notification) error {
	done := make(chan error, 1)
	go func() {
		done <- stream.Send(n)
	}()

	timer := time.NewTimer(m.sendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errSendTimeout
	}
}

// Forward broadcasts every playback event until events is closed or ctx
// is done.
func (m *Manager) Forward(ctx context.Context, events <-chan playback.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.Broadcast(FromEvent(e, time.Now()))
		}
	}
}

// Send delivers n to one subscriber without stamping a sequence number.
// Unknown IDs are ignored.
func (m *Manager) Send(subscriptionID string, n *Notification) error {
	m.mu.RLock()
	stream, ok := m.streams[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return m.deliver(stream, n)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

// Close drops every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	clear(m.streams)
	m.mu.Unlock()
}
