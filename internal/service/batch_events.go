package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const batchEventBufferSize = 16

// BatchEvent is a progress or lifecycle update for one batch grading job.
type BatchEvent struct {
	BatchID      string    `json:"batch_id"`
	AssignmentID uint      `json:"assignment_id"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Total        int       `json:"total"`
	Status       string    `json:"status"`
	EmittedAt    time.Time `json:"emitted_at"`
}

type batchEventEnvelope struct {
	Source string     `json:"source"`
	Event  BatchEvent `json:"event"`
}

// BatchEvents fans batch progress out to local subscribers and, when a NATS
// connection is configured, to other nodes.
type BatchEvents struct {
	nats    *nats.Conn
	subject string
	nodeID  string
	logger  zerolog.Logger

	mu          sync.RWMutex
	subscribers map[string]map[chan BatchEvent]struct{}
}

// NewBatchEvents constructs the event fan-out. natsConn may be nil, in which
// case events stay in-process.
func NewBatchEvents(natsConn *nats.Conn, subject string, logger zerolog.Logger) *BatchEvents {
	if subject == "" {
		subject = "classboard.evaluations.batches"
	}

	return &BatchEvents{
		nats:        natsConn,
		subject:     subject,
		nodeID:      uuid.NewString(),
		logger:      logger.With().Str("component", "batch_events").Logger(),
		subscribers: map[string]map[chan BatchEvent]struct{}{},
	}
}

// Publish delivers the event locally and mirrors it to NATS.
func (e *BatchEvents) Publish(ctx context.Context, event BatchEvent) {
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}

	e.dispatch(event)

	if e.nats == nil {
		return
	}

	payload, err := json.Marshal(batchEventEnvelope{Source: e.nodeID, Event: event})
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to encode batch event")
		return
	}

	if err := e.nats.Publish(e.subject, payload); err != nil {
		e.logger.Warn().Err(err).Str("batch_id", event.BatchID).Msg("failed to publish batch event")
	}
}

// Subscribe returns a channel receiving events for one batch id and a cancel
// function the caller must invoke when done.
func (e *BatchEvents) Subscribe(batchID string) (<-chan BatchEvent, func()) {
	ch := make(chan BatchEvent, batchEventBufferSize)

	e.mu.Lock()
	if e.subscribers[batchID] == nil {
		e.subscribers[batchID] = map[chan BatchEvent]struct{}{}
	}
	e.subscribers[batchID][ch] = struct{}{}
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if subs, ok := e.subscribers[batchID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(e.subscribers, batchID)
			}
		}
		e.mu.Unlock()
		close(ch)
	}

	return ch, cancel
}

// Start consumes batch events published by other nodes until ctx is cancelled.
func (e *BatchEvents) Start(ctx context.Context) {
	if e.nats == nil {
		return
	}

	sub, err := e.nats.Subscribe(e.subject, func(msg *nats.Msg) {
		var envelope batchEventEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			e.logger.Warn().Err(err).Msg("failed to decode batch event")
			return
		}
		if envelope.Source == e.nodeID {
			return
		}
		e.dispatch(envelope.Event)
	})
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to subscribe to batch events")
		return
	}

	<-ctx.Done()
	_ = sub.Unsubscribe()
}

func (e *BatchEvents) dispatch(event BatchEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for ch := range e.subscribers[event.BatchID] {
		select {
		case ch <- event:
		default:
			// Slow consumer; drop rather than block grading workers.
		}
	}
}
