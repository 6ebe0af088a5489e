// Package pubsub is the PubSub Multiplexer (C2, spec.md §4.2): it owns the
// pooled WebSocket connections to the platform's PubSub edge, decodes wire
// messages into store.PubSubEvent values, and hands them to its caller over
// a channel. It carries no betting, claiming, or goal-contribution logic of
// its own — that belongs to the event loop (C6) and the decision engine
// (C5); this package's only job is decode+dispatch (spec.md §5).
package pubsub

import (
	"log/slog"
	"sync"

	"github.com/twitch-miner/predictor/internal/constants"
	"github.com/twitch-miner/predictor/internal/store"
)

// Multiplexer pools WebSocket connections, each capped at
// constants.MaxTopicsPerConnection topics, and emits decoded events on a
// single bounded channel.
type Multiplexer struct {
	mu        sync.Mutex
	clients   []*WebSocketClient
	authToken func() string

	out chan store.PubSubEvent

	predMu      sync.Mutex
	predPending map[string]store.PredictionUpdated
	predWake    chan struct{}

	closeOnce sync.Once
	stopChan  chan struct{}
}

// NewMultiplexer builds an idle pool. authToken is called for every new
// connection so a refreshed token is picked up without restarting the pool.
func NewMultiplexer(authToken func() string) *Multiplexer {
	m := &Multiplexer{
		authToken:   authToken,
		out:         make(chan store.PubSubEvent, constants.DecodedEventQueueCapacity),
		predPending: make(map[string]store.PredictionUpdated),
		predWake:    make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
	go m.forwardPredictions()
	return m
}

// Events is the decoded-event stream the event loop (C6) consumes.
func (m *Multiplexer) Events() <-chan store.PubSubEvent {
	return m.out
}

// Submit assigns topic to the pool's last connection, opening a new one once
// the current one is at capacity (spec.md §4.2).
func (m *Multiplexer) Submit(topic Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.clients) == 0 || m.clients[len(m.clients)-1].TopicCount() >= constants.MaxTopicsPerConnection {
		ws := NewWebSocketClient(len(m.clients), m.authToken(), m.handleMessage, m.handleError)
		if err := ws.Connect(); err != nil {
			return err
		}
		m.clients = append(m.clients, ws)
	}

	m.clients[len(m.clients)-1].Listen(topic)
	return nil
}

// Close tears down every pooled connection and stops the forwarder.
func (m *Multiplexer) Close() {
	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.mu.Lock()
		for _, ws := range m.clients {
			ws.Close()
		}
		m.clients = nil
		m.mu.Unlock()
	})
}

func (m *Multiplexer) handleError(err error) {
	slog.Error("pubsub transport error", "error", err)
}

// handleMessage decodes a raw wire message and routes it onto the decoded
// channel under the backpressure policy: ViewCount is dropped first when the
// channel is full, PredictionUpdated is coalesced by event id, and every
// other event type is a blocking send (spec.md §4.6).
func (m *Multiplexer) handleMessage(msg *PubSubMessage) {
	ev, ok := decodeEvent(msg)
	if !ok {
		return
	}

	switch e := ev.(type) {
	case store.ViewCount:
		select {
		case m.out <- e:
		default:
			slog.Debug("dropping view count under backpressure", "channel", e.Channel())
		}
	case store.PredictionUpdated:
		m.queuePrediction(e)
	default:
		select {
		case m.out <- ev:
		case <-m.stopChan:
		}
	}
}

func (m *Multiplexer) queuePrediction(e store.PredictionUpdated) {
	m.predMu.Lock()
	m.predPending[e.Event.EventID] = e
	m.predMu.Unlock()

	select {
	case m.predWake <- struct{}{}:
	default:
	}
}

// forwardPredictions drains predPending, always sending the most recent
// update queued for a given event id, so a burst of odds updates for one
// event collapses to its latest state rather than backing up the channel.
func (m *Multiplexer) forwardPredictions() {
	for {
		select {
		case <-m.stopChan:
			return
		case <-m.predWake:
		}

		for {
			m.predMu.Lock()
			var id string
			var next store.PredictionUpdated
			for k, v := range m.predPending {
				id, next = k, v
				break
			}
			if id == "" {
				m.predMu.Unlock()
				break
			}
			delete(m.predPending, id)
			m.predMu.Unlock()

			select {
			case m.out <- next:
			case <-m.stopChan:
				return
			}
		}
	}
}
