package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmehdipour/sms-relay/internal/model"
)

func TestDialect_Upsert(t *testing.T) {
	active := model.SubscriberFields{IsActive: model.Bool(true)}
	admin := model.SubscriberFields{IsAdmin: model.Bool(false)}
	both := model.SubscriberFields{IsActive: model.Bool(true), IsAdmin: model.Bool(true)}

	tests := []struct {
		name    string
		dialect dialect
		fields  model.SubscriberFields
		want    string
	}{
		{"mysql_active", mysqlDialect{}, active, insertSubscriber + " ON DUPLICATE KEY UPDATE is_active = VALUES(is_active)"},
		{"mysql_admin", mysqlDialect{}, admin, insertSubscriber + " ON DUPLICATE KEY UPDATE is_admin = VALUES(is_admin)"},
		{"mysql_both", mysqlDialect{}, both, insertSubscriber + " ON DUPLICATE KEY UPDATE is_admin = VALUES(is_admin), is_active = VALUES(is_active)"},
		{"mysql_none", mysqlDialect{}, model.SubscriberFields{}, insertSubscriber + " ON DUPLICATE KEY UPDATE id = id"},
		{"sqlite_active", sqliteDialect{}, active, insertSubscriber + " ON CONFLICT (contact) DO UPDATE SET is_active = excluded.is_active"},
		{"sqlite_admin", sqliteDialect{}, admin, insertSubscriber + " ON CONFLICT (contact) DO UPDATE SET is_admin = excluded.is_admin"},
		{"sqlite_none", sqliteDialect{}, model.SubscriberFields{}, insertSubscriber + " ON CONFLICT (contact) DO NOTHING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.upsert(tt.fields))
		})
	}
}

func TestDialectFor(t *testing.T) {
	_, err := dialectFor("clickhouse")
	assert.ErrorContains(t, err, `unsupported driver "clickhouse"`)

	d, err := dialectFor("mysql")
	assert.NoError(t, err)
	assert.IsType(t, mysqlDialect{}, d)
}
