package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/service/relay"
	"github.com/jmehdipour/sms-relay/internal/twiml"
)

// MessageHandler is what the webhook needs from the relay service.
type MessageHandler interface {
	Handle(ctx context.Context, msg model.InboundMessage) (string, error)
}

func inboundSMSHandler(h MessageHandler, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		// POST body parameters only
		if _, err := c.FormParams(); err != nil {
			return reply(c, http.StatusBadRequest, "Invalid Body")
		}
		form := c.Request().PostForm

		// exactly one Body; an empty one is still a message
		bodies, ok := form["Body"]
		if !ok || len(bodies) != 1 {
			metrics.InboundTotal.WithLabelValues("invalid").Inc()
			return reply(c, http.StatusBadRequest, "Invalid Body")
		}
		// From is the store key and is kept as received; only an all-blank value is refused
		froms, ok := form["From"]
		if !ok || len(froms) != 1 || strings.TrimSpace(froms[0]) == "" {
			metrics.InboundTotal.WithLabelValues("invalid").Inc()
			return reply(c, http.StatusBadRequest, "Invalid From")
		}

		msg := model.InboundMessage{
			From: froms[0],
			Body: bodies[0],
			SID:  form.Get("MessageSid"),
		}

		text, err := h.Handle(c.Request().Context(), msg)
		if err != nil {
			log.Error("inbound message failed",
				zap.String("from", msg.From),
				zap.String("sid", msg.SID),
				zap.Error(err),
			)
			if errors.Is(err, relay.ErrStore) {
				return reply(c, http.StatusInternalServerError, "Subscriber store unavailable, please try again later")
			}
			return reply(c, http.StatusInternalServerError, "Internal error")
		}

		return reply(c, http.StatusOK, text)
	}
}

func reply(c echo.Context, status int, text string) error {
	return c.Blob(status, twiml.ContentType, twiml.Render(text))
}
