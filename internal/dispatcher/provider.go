package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/sms-relay/internal/model"
)

type Provider interface {
	Name() string
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, sms model.SMS) error
}

// ProviderOpts are the knobs shared by every provider kind.
type ProviderOpts struct {
	TimeoutMs     int
	FailThreshold int
	OpenForMs     int
}

func (o ProviderOpts) withDefaults() ProviderOpts {
	if o.TimeoutMs <= 0 {
		o.TimeoutMs = 3000
	}
	if o.FailThreshold <= 0 {
		o.FailThreshold = 3
	}
	if o.OpenForMs <= 0 {
		o.OpenForMs = 15000
	}
	return o
}

// base carries the HTTP client and breaker bookkeeping for a provider.
type base struct {
	name   string
	client *http.Client
	br     *MicroBreaker
}

func newBase(name string, opts ProviderOpts) base {
	opts = opts.withDefaults()
	return base{
		name:   name,
		client: &http.Client{Timeout: time.Duration(opts.TimeoutMs) * time.Millisecond},
		br:     NewMicroBreaker(opts.FailThreshold, time.Duration(opts.OpenForMs)*time.Millisecond),
	}
}

func (b *base) Name() string  { return b.name }
func (b *base) Ready() bool   { return b.br.Ready() }
func (b *base) Acquire() bool { return b.br.TryAcquire() }

// do sends req and feeds the outcome into the breaker.
func (b *base) do(req *http.Request) error {
	res, err := b.client.Do(req)
	if err != nil {
		b.br.OnFailure()
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		// a 4xx rejects this message only (bad number, bad body); the provider is up
		if providerFault(res.StatusCode) {
			b.br.OnFailure()
		} else {
			b.br.OnSuccess()
		}
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("provider=%s status=%d body=%q", b.name, res.StatusCode, strings.TrimSpace(string(msg)))
	}

	b.br.OnSuccess()
	return nil
}

func providerFault(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

// HTTPProvider posts {"phone","text"} JSON to a generic gateway endpoint.
type HTTPProvider struct {
	base
	url string
}

func NewHTTPProvider(name, baseURL, path string, opts ProviderOpts) *HTTPProvider {
	return &HTTPProvider{
		base: newBase(name, opts),
		url:  strings.TrimRight(baseURL, "/") + path,
	}
}

func (p *HTTPProvider) Send(ctx context.Context, sms model.SMS) error {
	b, err := json.Marshal(sms)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return p.do(req)
}

// TwilioAccount identifies the sending Twilio account. Exactly one of From
// or MessagingServiceSID is used, the service SID winning when both are set.
type TwilioAccount struct {
	AccountSID          string
	AuthToken           string
	From                string
	MessagingServiceSID string
}

// TwilioProvider sends through the Twilio Programmable Messaging REST API.
type TwilioProvider struct {
	base
	url     string
	account TwilioAccount
}

func NewTwilioProvider(name, baseURL string, account TwilioAccount, opts ProviderOpts) (*TwilioProvider, error) {
	if account.AccountSID == "" || account.AuthToken == "" {
		return nil, fmt.Errorf("twilio provider %s: account_sid and auth_token are required", name)
	}
	if account.From == "" && account.MessagingServiceSID == "" {
		return nil, fmt.Errorf("twilio provider %s: from or messaging_service_sid is required", name)
	}
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}
	return &TwilioProvider{
		base:    newBase(name, opts),
		url:     strings.TrimRight(baseURL, "/") + "/2010-04-01/Accounts/" + url.PathEscape(account.AccountSID) + "/Messages.json",
		account: account,
	}, nil
}

func (p *TwilioProvider) Send(ctx context.Context, sms model.SMS) error {
	form := url.Values{}
	form.Set("To", sms.Phone)
	form.Set("Body", sms.Text)
	if p.account.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", p.account.MessagingServiceSID)
	} else {
		form.Set("From", p.account.From)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.account.AccountSID, p.account.AuthToken)

	return p.do(req)
}
