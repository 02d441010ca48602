package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHBroadcastsRepository archives settled broadcasts in ClickHouse.
type CHBroadcastsRepository interface {
	InsertBatch(ctx context.Context, events []model.BroadcastEvent) error
	List(ctx context.Context, sender string, limit, offset int) ([]model.BroadcastEvent, error)
}

type chBroadcastsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHBroadcastsRepository(ch *sqlx.DB) CHBroadcastsRepository {
	return &chBroadcastsRepository{ch: ch}
}

// InsertBatch sends all events as one ClickHouse block.
func (r *chBroadcastsRepository) InsertBatch(ctx context.Context, events []model.BroadcastEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relay.broadcasts
		    (id, sender, body, attempted, succeeded, failed, started_at, settled_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.Sender, ev.Body,
			uint32(ev.Attempted), uint32(ev.Succeeded), uint32(ev.Failed),
			ev.StartedAt, ev.SettledAt,
		); err != nil {
			return fmt.Errorf("append %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (r *chBroadcastsRepository) List(ctx context.Context, sender string, limit, offset int) ([]model.BroadcastEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT id, sender, body, attempted, succeeded, failed, started_at, settled_at
		FROM relay.broadcasts FINAL
	`
	var args []any

	if sender != "" {
		q += " WHERE sender = ?"
		args = append(args, sender)
	}

	q += " ORDER BY settled_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows := []model.BroadcastEvent{}
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
