package broadcast_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/service/broadcast"
)

type fakeStore struct {
	subs []model.Subscriber
	err  error
}

func (s fakeStore) ListActive(context.Context) ([]model.Subscriber, error) {
	return s.subs, s.err
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []model.SMS
	fail   map[string]error
	before func(ctx context.Context)
}

func (s *fakeSender) Send(ctx context.Context, sms model.SMS) error {
	if s.before != nil {
		s.before(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sms)
	return s.fail[sms.Phone]
}

type fakePublisher struct {
	events []model.BroadcastEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev model.BroadcastEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func active(n int) []model.Subscriber {
	subs := make([]model.Subscriber, n)
	for i := range subs {
		subs[i] = model.Subscriber{ID: int64(i + 1), Contact: fmt.Sprintf("+1555000000%d", i), IsActive: true}
	}
	return subs
}

func TestEngine_Broadcast(t *testing.T) {
	sender := &fakeSender{}
	pub := &fakePublisher{}
	e := broadcast.New(fakeStore{subs: active(5)}, sender, pub, zap.NewNop())

	res, err := e.Broadcast(context.Background(), "+15559999999", "Hello everyone")
	require.NoError(t, err)

	assert.Equal(t, 5, res.Attempted)
	assert.Equal(t, 5, res.Succeeded)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Failures)
	assert.NotEmpty(t, res.ID)

	require.Len(t, sender.sent, 5)
	phones := make([]string, 0, 5)
	for _, s := range sender.sent {
		assert.Equal(t, "Hello everyone", s.Text)
		phones = append(phones, s.Phone)
	}
	assert.ElementsMatch(t, []string{"+15550000000", "+15550000001", "+15550000002", "+15550000003", "+15550000004"}, phones)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, res.ID, ev.ID)
	assert.Equal(t, "+15559999999", ev.Sender)
	assert.Equal(t, "Hello everyone", ev.Body)
	assert.Equal(t, 5, ev.Attempted)
	assert.Equal(t, 5, ev.Succeeded)
	assert.False(t, ev.SettledAt.Before(ev.StartedAt))
}

func TestEngine_Broadcast_PartialFailure(t *testing.T) {
	boom := errors.New("invalid destination")
	subs := active(3)
	sender := &fakeSender{fail: map[string]error{subs[1].Contact: boom}}
	e := broadcast.New(fakeStore{subs: subs}, sender, nil, zap.NewNop())

	res, err := e.Broadcast(context.Background(), "+15559999999", "Hello")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, subs[1].Contact, res.Failures[0].Contact)
	assert.ErrorIs(t, res.Failures[0], boom)
	assert.EqualError(t, res.Failures[0], "dispatch to +15550000001: invalid destination")

	// every recipient got exactly one attempt, no retry
	assert.Len(t, sender.sent, 3)
}

func TestEngine_Broadcast_Concurrent(t *testing.T) {
	const n = 10

	var arrived sync.WaitGroup
	arrived.Add(n)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	sender := &fakeSender{before: func(context.Context) {
		arrived.Done()
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}}
	e := broadcast.New(fakeStore{subs: active(n)}, sender, nil, zap.NewNop())

	start := time.Now()
	res, err := e.Broadcast(context.Background(), "+1", "hi")
	require.NoError(t, err)
	assert.Equal(t, n, res.Succeeded)
	// all sends were in flight together, so nobody waited for the timeout
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestEngine_Broadcast_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var mu sync.Mutex
	var ctxErrs []error
	sender := &fakeSender{before: func(ctx context.Context) {
		mu.Lock()
		ctxErrs = append(ctxErrs, ctx.Err())
		mu.Unlock()
	}}
	e := broadcast.New(fakeStore{subs: active(2)}, sender, nil, zap.NewNop())

	res, err := e.Broadcast(ctx, "+1", "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, []error{nil, nil}, ctxErrs)
}

func TestEngine_Broadcast_NoSubscribers(t *testing.T) {
	sender := &fakeSender{}
	e := broadcast.New(fakeStore{subs: []model.Subscriber{}}, sender, nil, zap.NewNop())

	res, err := e.Broadcast(context.Background(), "+1", "hi")
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
	assert.Empty(t, sender.sent)
}

func TestEngine_Broadcast_StoreError(t *testing.T) {
	sender := &fakeSender{}
	pub := &fakePublisher{}
	e := broadcast.New(fakeStore{err: assert.AnError}, sender, pub, zap.NewNop())

	_, err := e.Broadcast(context.Background(), "+1", "hi")
	require.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "list active subscribers: ")
	assert.Empty(t, sender.sent)
	assert.Empty(t, pub.events)
}

func TestEngine_Broadcast_PublishErrorIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: assert.AnError}
	e := broadcast.New(fakeStore{subs: active(1)}, &fakeSender{}, pub, zap.NewNop())

	res, err := e.Broadcast(context.Background(), "+1", "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Len(t, pub.events, 1)
}
