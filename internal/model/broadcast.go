package model

import "time"

// BroadcastEvent is published to Kafka once a broadcast has settled, and
// archived into ClickHouse by the archiver worker.
type BroadcastEvent struct {
	ID        string    `json:"id"         db:"id"` // ULID
	Sender    string    `json:"sender"     db:"sender"`
	Body      string    `json:"body"       db:"body"`
	Attempted int       `json:"attempted"  db:"attempted"`
	Succeeded int       `json:"succeeded"  db:"succeeded"`
	Failed    int       `json:"failed"     db:"failed"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	SettledAt time.Time `json:"settled_at" db:"settled_at"`
}
