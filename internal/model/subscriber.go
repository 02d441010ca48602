package model

// Subscriber is the DB entity persisted in the subscribers table.
type Subscriber struct {
	ID       int64  `db:"id"`
	Contact  string `db:"contact"`
	IsAdmin  bool   `db:"is_admin"`
	IsActive bool   `db:"is_active"`
}

// SubscriberFields selects which flags an upsert touches. A nil field keeps
// the stored value on update and defaults to false on insert.
type SubscriberFields struct {
	IsActive *bool
	IsAdmin  *bool
}

func (f SubscriberFields) Empty() bool {
	return f.IsActive == nil && f.IsAdmin == nil
}

// Bool returns a pointer to b, for building SubscriberFields.
func Bool(b bool) *bool { return &b }
