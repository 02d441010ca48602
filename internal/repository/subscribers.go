package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmoiron/sqlx"
)

// SubscribersRepository persists the subscribers table. Every method is safe
// for concurrent use; Upsert is a single conditional insert-or-update statement.
type SubscribersRepository interface {
	Get(ctx context.Context, contact string) (*model.Subscriber, error)
	Upsert(ctx context.Context, contact string, fields model.SubscriberFields) error
	ListActive(ctx context.Context) ([]model.Subscriber, error)
	ListAdmins(ctx context.Context) ([]model.Subscriber, error)
}

type SubscribersRepositoryImpl struct {
	db      *sqlx.DB
	dialect dialect
}

func NewSubscribersRepository(db *sqlx.DB) (*SubscribersRepositoryImpl, error) {
	d, err := dialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	return &SubscribersRepositoryImpl{db: db, dialect: d}, nil
}

var _ SubscribersRepository = (*SubscribersRepositoryImpl)(nil)

// Get returns (nil, nil) when no subscriber exists for contact.
func (r *SubscribersRepositoryImpl) Get(ctx context.Context, contact string) (*model.Subscriber, error) {
	var s model.Subscriber
	err := r.db.GetContext(ctx, &s, `
		SELECT id, contact, is_admin, is_active
		  FROM subscribers
		 WHERE contact = ? LIMIT 1
	`, contact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber %s: %w", contact, err)
	}
	return &s, nil
}

// Upsert creates the subscriber (unset flags default to false) or updates
// only the flags present in fields.
func (r *SubscribersRepositoryImpl) Upsert(ctx context.Context, contact string, fields model.SubscriberFields) error {
	q := r.dialect.upsert(fields)
	if _, err := r.db.ExecContext(ctx, q,
		contact, valueOrFalse(fields.IsAdmin), valueOrFalse(fields.IsActive),
	); err != nil {
		return fmt.Errorf("upsert subscriber %s: %w", contact, err)
	}
	return nil
}

func (r *SubscribersRepositoryImpl) ListActive(ctx context.Context) ([]model.Subscriber, error) {
	rows := []model.Subscriber{}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, contact, is_admin, is_active
		  FROM subscribers
		 WHERE is_active = 1
	`); err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	return rows, nil
}

func (r *SubscribersRepositoryImpl) ListAdmins(ctx context.Context) ([]model.Subscriber, error) {
	rows := []model.Subscriber{}
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, contact, is_admin, is_active
		  FROM subscribers
		 WHERE is_admin = 1
		 ORDER BY contact
	`); err != nil {
		return nil, fmt.Errorf("list admin subscribers: %w", err)
	}
	return rows, nil
}

func valueOrFalse(b *bool) bool {
	return b != nil && *b
}

// dialect renders the upsert statement for one SQL backend.
type dialect interface {
	upsert(fields model.SubscriberFields) string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "mysql":
		return mysqlDialect{}, nil
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("subscribers: unsupported driver %q", driver)
	}
}

const insertSubscriber = `INSERT INTO subscribers (contact, is_admin, is_active) VALUES (?, ?, ?)`

type mysqlDialect struct{}

func (mysqlDialect) upsert(f model.SubscriberFields) string {
	set := updatedColumns(f, "%[1]s = VALUES(%[1]s)")
	if len(set) == 0 {
		return insertSubscriber + ` ON DUPLICATE KEY UPDATE id = id`
	}
	return insertSubscriber + ` ON DUPLICATE KEY UPDATE ` + strings.Join(set, ", ")
}

type sqliteDialect struct{}

func (sqliteDialect) upsert(f model.SubscriberFields) string {
	set := updatedColumns(f, "%[1]s = excluded.%[1]s")
	if len(set) == 0 {
		return insertSubscriber + ` ON CONFLICT (contact) DO NOTHING`
	}
	return insertSubscriber + ` ON CONFLICT (contact) DO UPDATE SET ` + strings.Join(set, ", ")
}

// updatedColumns lists one assignment per supplied field. Each option feeds
// its own same-named column.
func updatedColumns(f model.SubscriberFields, format string) []string {
	var set []string
	if f.IsAdmin != nil {
		set = append(set, fmt.Sprintf(format, "is_admin"))
	}
	if f.IsActive != nil {
		set = append(set, fmt.Sprintf(format, "is_active"))
	}
	return set
}
