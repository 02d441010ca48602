package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/twiml"
)

// Deduper remembers provider message ids.
type Deduper interface {
	// Claim reports true the first time sid is seen within the TTL.
	Claim(ctx context.Context, sid string) (bool, error)
	// Release forgets sid so a retried delivery is processed again.
	Release(ctx context.Context, sid string) error
}

// RedisDeduper claims message ids with SET NX.
type RedisDeduper struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, keyPrefix: "relay:sid:", ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, sid string) (bool, error) {
	return d.rdb.SetNX(ctx, d.keyPrefix+sid, 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, sid string) error {
	return d.rdb.Del(ctx, d.keyPrefix+sid).Err()
}

// DedupMiddleware answers a repeated MessageSid with an empty reply instead
// of applying it twice. Requests without a sid pass through, and so does
// everything when the deduper errors (fail-open). A sid whose handling
// failed with a 5xx is released so the provider's retry is processed.
func DedupMiddleware(d Deduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if d == nil {
				return next(c)
			}
			if _, err := c.FormParams(); err != nil {
				return next(c)
			}
			sid := strings.TrimSpace(c.Request().PostForm.Get("MessageSid"))
			if sid == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			first, err := d.Claim(ctx, sid)
			if err != nil {
				c.Logger().Warnf("dedup claim %s: %v", sid, err)
				return next(c)
			}
			if !first {
				metrics.InboundTotal.WithLabelValues("duplicate").Inc()
				return c.Blob(http.StatusOK, twiml.ContentType, twiml.Render(""))
			}

			err = next(c)
			if err != nil || c.Response().Status >= http.StatusInternalServerError {
				if rerr := d.Release(context.WithoutCancel(ctx), sid); rerr != nil {
					c.Logger().Warnf("dedup release %s: %v", sid, rerr)
				}
			}
			return err
		}
	}
}
