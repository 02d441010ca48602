package model

// SMS is a single outbound message handed to a provider.
type SMS struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

// InboundMessage is one message received on the webhook. It is never persisted.
type InboundMessage struct {
	From string
	Body string
	SID  string // provider message id, optional
}
