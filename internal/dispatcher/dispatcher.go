package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/model"
)

var (
	ErrNoHealthy = fmt.Errorf("no healthy providers")
	ErrNoAcquire = fmt.Errorf("provider not acquired")
)

// Dispatcher spreads sends over the configured providers round-robin,
// skipping any whose breaker is open.
type Dispatcher struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

// NewDispatcher builds a dispatcher. maxAttempts below 1 means a single try.
func NewDispatcher(provs []Provider, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Dispatcher{providers: provs, maxAttempts: maxAttempts}
}

// FromConfig builds providers from config, dropping disabled entries.
func FromConfig(cfg config.Config) (*Dispatcher, error) {
	var provs []Provider
	for _, pc := range cfg.Providers {
		if !pc.Enabled || strings.TrimSpace(pc.BaseURL) == "" {
			continue
		}
		opts := ProviderOpts{
			TimeoutMs:     pc.TimeoutMs,
			FailThreshold: pc.Breaker.FailThreshold,
			OpenForMs:     pc.Breaker.OpenForMs,
		}

		switch pc.Kind {
		case "", "twilio":
			p, err := NewTwilioProvider(pc.Name, pc.BaseURL, TwilioAccount{
				AccountSID:          pc.AccountSID,
				AuthToken:           pc.AuthToken,
				From:                pc.From,
				MessagingServiceSID: pc.MessagingServiceSID,
			}, opts)
			if err != nil {
				return nil, err
			}
			provs = append(provs, p)
		case "http":
			provs = append(provs, NewHTTPProvider(pc.Name, pc.BaseURL, pc.Path, opts))
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", pc.Name, pc.Kind)
		}
	}
	if len(provs) == 0 {
		return nil, fmt.Errorf("no providers enabled in config")
	}
	return NewDispatcher(provs, cfg.Dispatcher.MaxAttempts), nil
}

func (d *Dispatcher) selectProvider() (Provider, error) {
	healthy := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Ready() {
			healthy = append(healthy, p)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, sms model.SMS) error {
	p, err := d.selectProvider()
	if err != nil {
		return err
	}

	if !p.Acquire() {
		return ErrNoAcquire
	}

	return p.Send(ctx, sms)
}

// Send delivers sms through one provider, trying at most maxAttempts times.
func (d *Dispatcher) Send(ctx context.Context, sms model.SMS) error {
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		err := d.tryOnce(ctx, sms)
		if err == nil {
			return nil
		}
		last = err
	}

	return fmt.Errorf("send to %s: %w", sms.Phone, last)
}
