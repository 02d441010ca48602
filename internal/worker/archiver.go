package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/sms-relay/internal/kafka"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
)

// Source is the Kafka side of the archiver.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Archiver:
// - fetches broadcast events from Kafka,
// - buffers them up to BatchSize or BatchWait,
// - inserts each batch into ClickHouse, then commits the offsets (at-least-once).
type Archiver struct {
	// Dependencies
	Source  Source
	Archive repository.CHBroadcastsRepository
	Log     *zap.Logger

	// Behavior
	BatchSize int
	BatchWait time.Duration
}

// NewArchiver builds a worker with sane defaults.
func NewArchiver(src Source, archive repository.CHBroadcastsRepository, log *zap.Logger) *Archiver {
	return &Archiver{
		Source:    src,
		Archive:   archive,
		Log:       log.With(zap.String("component", "archiver")),
		BatchSize: 200,
		BatchWait: time.Second,
	}
}

// Run blocks until ctx is cancelled, flushing whatever is buffered on the way out.
func (a *Archiver) Run(ctx context.Context) error {
	if a.BatchSize <= 0 {
		a.BatchSize = 200
	}
	if a.BatchWait <= 0 {
		a.BatchWait = time.Second
	}

	msgCh := make(chan kafka.Message, a.BatchSize)

	// Fetcher goroutine
	go func() {
		defer close(msgCh)
		for {
			m, err := a.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				a.Log.Warn("kafka fetch", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	a.runBatchWriter(ctx, msgCh)
	return nil
}

// runBatchWriter does size/time-based flushes into ClickHouse.
func (a *Archiver) runBatchWriter(ctx context.Context, in <-chan kafka.Message) {
	tick := time.NewTicker(a.BatchWait)
	defer tick.Stop()

	var (
		events []model.BroadcastEvent
		msgs   []kafka.Message
	)

	flush := func() {
		if len(msgs) == 0 {
			return
		}

		// the final flush runs after ctx is done
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if err := a.Archive.InsertBatch(fctx, events); err != nil {
			// keep the batch; offsets stay uncommitted and are retried on the next flush
			metrics.ArchivedTotal.WithLabelValues("failed").Add(float64(len(events)))
			a.Log.Error("insert broadcast batch", zap.Int("events", len(events)), zap.Error(err))
			return
		}
		metrics.ArchivedTotal.WithLabelValues("stored").Add(float64(len(events)))

		if err := a.Source.Commit(fctx, msgs...); err != nil {
			a.Log.Error("kafka commit", zap.Error(err))
		}

		a.Log.Info("flushed", zap.Int("events", len(events)), zap.Int("messages", len(msgs)))
		events = events[:0]
		msgs = msgs[:0]
	}

	for {
		select {
		case m, ok := <-in:
			if !ok {
				flush()
				return
			}

			ev, err := decodeEvent(m)
			if err != nil {
				// poison: commit with the batch, skip the row
				metrics.ArchivedTotal.WithLabelValues("skipped").Inc()
				a.Log.Warn("bad broadcast event", zap.Int64("offset", m.Offset), zap.Error(err))
			} else {
				events = append(events, ev)
			}
			msgs = append(msgs, m)

			if len(msgs) >= a.BatchSize {
				flush()
			}

		case <-tick.C:
			flush()
		}
	}
}

var errMissingID = errors.New("event missing id")

func decodeEvent(m kafka.Message) (model.BroadcastEvent, error) {
	var ev model.BroadcastEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return ev, err
	}
	if ev.ID == "" {
		return ev, errMissingID
	}
	return ev, nil
}
