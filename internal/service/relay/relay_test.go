package relay_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-relay/internal/command"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/service/broadcast"
	"github.com/jmehdipour/sms-relay/internal/service/relay"
	"github.com/jmehdipour/sms-relay/internal/service/relay/mocks"
)

const (
	contact = "+15551234567"
	admin   = "+15559999999"
)

func newHandler(t *testing.T, store relay.SubscriberStore, b relay.Broadcaster) *relay.Handler {
	t.Helper()
	c, err := command.NewClassifier(command.DefaultVocabulary())
	require.NoError(t, err)
	return relay.NewHandler(c, store, b, relay.DefaultReplies(), zap.NewNop())
}

func TestHandler_Subscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockSubscriberStore(ctrl)
		// is_admin is never part of the mutation
		store.EXPECT().Upsert(gomock.Any(), contact, model.SubscriberFields{IsActive: model.Bool(true)}).Return(nil)

		reply, err := newHandler(t, store, mocks.NewMockBroadcaster(ctrl)).Handle(ctx, model.InboundMessage{From: contact, Body: " START "})
		require.NoError(t, err)
		assert.Equal(t, relay.DefaultReplies().Subscribed, reply)
		assert.Contains(t, reply, "Reply STOP to unsubscribe")
	})

	t.Run("store_error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockSubscriberStore(ctrl)
		store.EXPECT().Upsert(gomock.Any(), contact, gomock.Any()).Return(assert.AnError)

		reply, err := newHandler(t, store, mocks.NewMockBroadcaster(ctrl)).Handle(ctx, model.InboundMessage{From: contact, Body: "start"})
		require.ErrorIs(t, err, relay.ErrStore)
		require.ErrorIs(t, err, assert.AnError)
		assert.ErrorContains(t, err, "subscribe "+contact+": ")
		assert.Empty(t, reply)
	})
}

func TestHandler_Unsubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockSubscriberStore(ctrl)
		store.EXPECT().Upsert(gomock.Any(), contact, model.SubscriberFields{IsActive: model.Bool(false)}).Return(nil)

		reply, err := newHandler(t, store, mocks.NewMockBroadcaster(ctrl)).Handle(ctx, model.InboundMessage{From: contact, Body: "Stop"})
		require.NoError(t, err)
		assert.Equal(t, relay.DefaultReplies().Unsubscribed, reply)
	})

	t.Run("store_error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockSubscriberStore(ctrl)
		store.EXPECT().Upsert(gomock.Any(), contact, gomock.Any()).Return(assert.AnError)

		_, err := newHandler(t, store, mocks.NewMockBroadcaster(ctrl)).Handle(ctx, model.InboundMessage{From: contact, Body: "stop"})
		require.ErrorIs(t, err, relay.ErrStore)
		assert.ErrorContains(t, err, "unsubscribe "+contact+": ")
	})
}

func TestHandler_ResolveSender(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		store     func(*gomock.Controller) relay.SubscriberStore
		broadcast func(*gomock.Controller) relay.Broadcaster
		wantReply string
		wantErr   error
	}{
		{
			name: "unknown_sender",
			store: func(ctrl *gomock.Controller) relay.SubscriberStore {
				res := mocks.NewMockSubscriberStore(ctrl)
				res.EXPECT().Get(gomock.Any(), contact).Return(nil, nil)
				return res
			},
			broadcast: func(ctrl *gomock.Controller) relay.Broadcaster {
				return mocks.NewMockBroadcaster(ctrl)
			},
		},
		{
			name: "non_admin",
			store: func(ctrl *gomock.Controller) relay.SubscriberStore {
				res := mocks.NewMockSubscriberStore(ctrl)
				res.EXPECT().Get(gomock.Any(), contact).Return(&model.Subscriber{Contact: contact, IsActive: true}, nil)
				return res
			},
			broadcast: func(ctrl *gomock.Controller) relay.Broadcaster {
				return mocks.NewMockBroadcaster(ctrl)
			},
		},
		{
			name: "admin",
			store: func(ctrl *gomock.Controller) relay.SubscriberStore {
				res := mocks.NewMockSubscriberStore(ctrl)
				res.EXPECT().Get(gomock.Any(), contact).Return(&model.Subscriber{Contact: contact, IsAdmin: true}, nil)
				return res
			},
			broadcast: func(ctrl *gomock.Controller) relay.Broadcaster {
				res := mocks.NewMockBroadcaster(ctrl)
				res.EXPECT().Broadcast(gomock.Any(), contact, "Hello everyone").
					Return(broadcast.Result{Attempted: 5, Succeeded: 4, Failed: 1}, nil)
				return res
			},
			wantReply: "Sent your message to 5 subscribers.",
		},
		{
			name: "lookup_error",
			store: func(ctrl *gomock.Controller) relay.SubscriberStore {
				res := mocks.NewMockSubscriberStore(ctrl)
				res.EXPECT().Get(gomock.Any(), contact).Return(nil, assert.AnError)
				return res
			},
			broadcast: func(ctrl *gomock.Controller) relay.Broadcaster {
				return mocks.NewMockBroadcaster(ctrl)
			},
			wantErr: relay.ErrStore,
		},
		{
			name: "broadcast_list_error",
			store: func(ctrl *gomock.Controller) relay.SubscriberStore {
				res := mocks.NewMockSubscriberStore(ctrl)
				res.EXPECT().Get(gomock.Any(), contact).Return(&model.Subscriber{Contact: contact, IsAdmin: true}, nil)
				return res
			},
			broadcast: func(ctrl *gomock.Controller) relay.Broadcaster {
				res := mocks.NewMockBroadcaster(ctrl)
				res.EXPECT().Broadcast(gomock.Any(), contact, "Hello everyone").Return(broadcast.Result{}, assert.AnError)
				return res
			},
			wantErr: relay.ErrStore,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			h := newHandler(t, tt.store(ctrl), tt.broadcast(ctrl))
			reply, err := h.Handle(ctx, model.InboundMessage{From: contact, Body: "Hello everyone"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, assert.AnError)
				assert.Empty(t, reply)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantReply, reply)
		})
	}
}

func TestHandler_NearMissKeywordsAreNotCommands(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSubscriberStore(ctrl)
	store.EXPECT().Get(gomock.Any(), contact).Return(nil, nil).Times(2)

	h := newHandler(t, store, mocks.NewMockBroadcaster(ctrl))
	for _, body := range []string{"started", "restart"} {
		reply, err := h.Handle(context.Background(), model.InboundMessage{From: contact, Body: body})
		require.NoError(t, err)
		assert.Empty(t, reply)
	}
}
