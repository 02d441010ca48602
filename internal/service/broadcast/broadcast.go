// Package broadcast fans an admin message out to every active subscriber.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/util"
)

type Store interface {
	ListActive(ctx context.Context) ([]model.Subscriber, error)
}

type Sender interface {
	Send(ctx context.Context, sms model.SMS) error
}

// Publisher receives the settled tally of every broadcast.
type Publisher interface {
	Publish(ctx context.Context, ev model.BroadcastEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, model.BroadcastEvent) error { return nil }

// DispatchError is the failure of a single recipient's send.
type DispatchError struct {
	Contact string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s: %v", e.Contact, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Result tallies one broadcast. Attempted always equals the number of active
// subscribers at snapshot time.
type Result struct {
	ID        string
	Attempted int
	Succeeded int
	Failed    int
	Failures  []*DispatchError
}

type Engine struct {
	store     Store
	sender    Sender
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time
}

func New(store Store, sender Sender, publisher Publisher, log *zap.Logger) *Engine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Engine{
		store:     store,
		sender:    sender,
		publisher: publisher,
		log:       log.With(zap.String("component", "broadcast")),
		now:       time.Now,
	}
}

// Broadcast sends body to every active subscriber concurrently and waits for
// all sends to settle. Individual send failures never abort the others and
// are not retried; only a failure to read the subscriber list is returned.
func (e *Engine) Broadcast(ctx context.Context, from, body string) (Result, error) {
	started := e.now()

	subs, err := e.store.ListActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list active subscribers: %w", err)
	}

	res := Result{ID: util.NewID(started), Attempted: len(subs)}
	metrics.BroadcastFanout.Observe(float64(len(subs)))

	// sends run to completion even if the inbound request goes away
	sendCtx := context.WithoutCancel(ctx)

	p := pool.NewWithResults[*DispatchError]()
	for _, s := range subs {
		contact := s.Contact
		p.Go(func() *DispatchError {
			if err := e.sender.Send(sendCtx, model.SMS{Phone: contact, Text: body}); err != nil {
				return &DispatchError{Contact: contact, Err: err}
			}
			return nil
		})
	}

	for _, de := range p.Wait() {
		if de == nil {
			res.Succeeded++
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, de)
		e.log.Warn("broadcast dispatch failed",
			zap.String("broadcast_id", res.ID),
			zap.String("contact", de.Contact),
			zap.Error(de.Err),
		)
	}
	metrics.BroadcastSendsTotal.WithLabelValues("sent").Add(float64(res.Succeeded))
	metrics.BroadcastSendsTotal.WithLabelValues("failed").Add(float64(res.Failed))

	settled := e.now()
	e.log.Info("broadcast settled",
		zap.String("broadcast_id", res.ID),
		zap.String("sender", from),
		zap.Int("attempted", res.Attempted),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Duration("took", settled.Sub(started)),
	)

	if err := e.publisher.Publish(sendCtx, model.BroadcastEvent{
		ID:        res.ID,
		Sender:    from,
		Body:      body,
		Attempted: res.Attempted,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		StartedAt: started,
		SettledAt: settled,
	}); err != nil {
		e.log.Error("publish broadcast event", zap.String("broadcast_id", res.ID), zap.Error(err))
	}

	return res, nil
}
