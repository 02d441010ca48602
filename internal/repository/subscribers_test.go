package repository_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/sms-relay/internal/db"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
)

const contact = "+15551234567"

func newRepo(t *testing.T) *repository.SubscribersRepositoryImpl {
	t.Helper()

	sqlDB, err := db.NewSQLiteConnection(filepath.Join(t.TempDir(), "relay.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(context.Background(), sqlDB))

	repo, err := repository.NewSubscribersRepository(sqlDB)
	require.NoError(t, err)
	return repo
}

func TestSubscribers_Get(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	t.Run("not_found", func(t *testing.T) {
		sub, err := repo.Get(ctx, contact)
		require.NoError(t, err)
		assert.Nil(t, sub)
	})

	t.Run("found", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(true)}))

		sub, err := repo.Get(ctx, contact)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.NotZero(t, sub.ID)
		assert.Equal(t, contact, sub.Contact)
		assert.True(t, sub.IsActive)
		assert.False(t, sub.IsAdmin)
	})

	t.Run("contact_used_verbatim", func(t *testing.T) {
		sub, err := repo.Get(ctx, "15551234567")
		require.NoError(t, err)
		assert.Nil(t, sub)
	})
}

func TestSubscribers_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("insert_defaults_missing_flags_to_false", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsAdmin: model.Bool(true)}))

		sub, err := repo.Get(ctx, contact)
		require.NoError(t, err)
		assert.True(t, sub.IsAdmin)
		assert.False(t, sub.IsActive)
	})

	t.Run("update_touches_only_supplied_fields", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsAdmin: model.Bool(true)}))

		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(true)}))
		sub, err := repo.Get(ctx, contact)
		require.NoError(t, err)
		assert.True(t, sub.IsAdmin)
		assert.True(t, sub.IsActive)

		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(false)}))
		sub, err = repo.Get(ctx, contact)
		require.NoError(t, err)
		assert.True(t, sub.IsAdmin)
		assert.False(t, sub.IsActive)
	})

	t.Run("empty_fields_keep_existing_row", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(true)}))
		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{}))

		sub, err := repo.Get(ctx, contact)
		require.NoError(t, err)
		assert.True(t, sub.IsActive)
	})

	t.Run("idempotent", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(true)}))
		first, err := repo.Get(ctx, contact)
		require.NoError(t, err)

		require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(true)}))
		second, err := repo.Get(ctx, contact)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("concurrent_single_row", func(t *testing.T) {
		repo := newRepo(t)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(active bool) {
				defer wg.Done()
				assert.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(active)}))
			}(i%2 == 0)
		}
		wg.Wait()

		active, err := repo.ListActive(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(active), 1)

		sub, err := repo.Get(ctx, contact)
		require.NoError(t, err)
		assert.NotNil(t, sub)
	})
}

func TestSubscribers_ListActive(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Upsert(ctx, fmt.Sprintf("+1555000000%d", i), model.SubscriberFields{IsActive: model.Bool(true)}))
	}
	require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(true)}))

	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 4)
	assert.Contains(t, contacts(active), contact)

	require.NoError(t, repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(false)}))

	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)
	assert.NotContains(t, contacts(active), contact)
}

func TestSubscribers_ListAdmins(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Upsert(ctx, "+2", model.SubscriberFields{IsAdmin: model.Bool(true)}))
	require.NoError(t, repo.Upsert(ctx, "+1", model.SubscriberFields{IsAdmin: model.Bool(true), IsActive: model.Bool(true)}))
	require.NoError(t, repo.Upsert(ctx, "+3", model.SubscriberFields{IsActive: model.Bool(true)}))

	admins, err := repo.ListAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"+1", "+2"}, contacts(admins))
}

func TestSubscribers_StoreFailure(t *testing.T) {
	ctx := context.Background()

	sqlDB, err := db.NewSQLiteConnection(filepath.Join(t.TempDir(), "relay.db"), 0)
	require.NoError(t, err)
	repo, err := repository.NewSubscribersRepository(sqlDB)
	require.NoError(t, err)

	// no migration: the table is missing
	_, err = repo.Get(ctx, contact)
	assert.ErrorContains(t, err, "get subscriber "+contact+": ")

	err = repo.Upsert(ctx, contact, model.SubscriberFields{IsActive: model.Bool(true)})
	assert.ErrorContains(t, err, "upsert subscriber "+contact+": ")

	require.NoError(t, sqlDB.Close())
	_, err = repo.ListActive(ctx)
	assert.ErrorContains(t, err, "list active subscribers: ")
}

func contacts(subs []model.Subscriber) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Contact)
	}
	return out
}
