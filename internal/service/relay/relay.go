// Package relay turns one inbound SMS into at most one subscriber mutation or
// one broadcast, and the reply text for the sender.
package relay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmehdipour/sms-relay/internal/command"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/service/broadcast"
)

//go:generate mockgen -package mocks -destination mocks/relay.go . SubscriberStore,Broadcaster

// ErrStore marks a failed subscriber store operation. The command was not applied.
var ErrStore = errors.New("subscriber store failure")

type SubscriberStore interface {
	Get(ctx context.Context, contact string) (*model.Subscriber, error)
	Upsert(ctx context.Context, contact string, fields model.SubscriberFields) error
}

type Broadcaster interface {
	Broadcast(ctx context.Context, from, body string) (broadcast.Result, error)
}

// Replies are the fixed confirmation texts.
type Replies struct {
	Subscribed   string
	Unsubscribed string
}

func DefaultReplies() Replies {
	return Replies{
		Subscribed:   "Thank you! You will receive updates from LEANA alerts. Reply STOP to unsubscribe",
		Unsubscribed: "You have been unsubscribed. You will no longer receive updates from LEANA alerts",
	}
}

type Handler struct {
	classifier  *command.Classifier
	store       SubscriberStore
	broadcaster Broadcaster
	replies     Replies
	log         *zap.Logger
}

func NewHandler(classifier *command.Classifier, store SubscriberStore, broadcaster Broadcaster, replies Replies, log *zap.Logger) *Handler {
	return &Handler{
		classifier:  classifier,
		store:       store,
		broadcaster: broadcaster,
		replies:     replies,
		log:         log.With(zap.String("component", "relay")),
	}
}

// Handle applies msg and returns the reply text. An empty reply means the
// message is ignored silently (unknown sender or non-admin free text).
func (h *Handler) Handle(ctx context.Context, msg model.InboundMessage) (string, error) {
	switch h.classifier.Classify(msg.Body) {
	case command.Subscribe:
		return h.setActive(ctx, msg.From, true, "subscribe", h.replies.Subscribed)
	case command.Unsubscribe:
		return h.setActive(ctx, msg.From, false, "unsubscribe", h.replies.Unsubscribed)
	default:
		return h.resolveSender(ctx, msg)
	}
}

// setActive touches only is_active; is_admin is managed out of band.
func (h *Handler) setActive(ctx context.Context, from string, active bool, label, reply string) (string, error) {
	if err := h.store.Upsert(ctx, from, model.SubscriberFields{IsActive: model.Bool(active)}); err != nil {
		return "", fmt.Errorf("%w: %s %s: %w", ErrStore, label, from, err)
	}
	metrics.InboundTotal.WithLabelValues(label).Inc()
	h.log.Info("subscriber updated", zap.String("contact", from), zap.Bool("active", active))
	return reply, nil
}

func (h *Handler) resolveSender(ctx context.Context, msg model.InboundMessage) (string, error) {
	sub, err := h.store.Get(ctx, msg.From)
	if err != nil {
		return "", fmt.Errorf("%w: lookup %s: %w", ErrStore, msg.From, err)
	}
	if sub == nil || !sub.IsAdmin {
		metrics.InboundTotal.WithLabelValues("ignored").Inc()
		h.log.Debug("ignoring message", zap.String("contact", msg.From), zap.Bool("known", sub != nil))
		return "", nil
	}

	res, err := h.broadcaster.Broadcast(ctx, msg.From, msg.Body)
	if err != nil {
		return "", fmt.Errorf("%w: broadcast from %s: %w", ErrStore, msg.From, err)
	}
	metrics.InboundTotal.WithLabelValues("broadcast").Inc()

	// attempted count only; per-recipient failures go to logs and metrics
	return fmt.Sprintf("Sent your message to %d subscribers.", res.Attempted), nil
}
