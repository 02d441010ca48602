package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/sms-relay/internal/command"
	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/db"
	"github.com/jmehdipour/sms-relay/internal/dispatcher"
	httpSrv "github.com/jmehdipour/sms-relay/internal/http"
	"github.com/jmehdipour/sms-relay/internal/http/middleware"
	"github.com/jmehdipour/sms-relay/internal/kafka"
	"github.com/jmehdipour/sms-relay/internal/logger"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"github.com/jmehdipour/sms-relay/internal/service/broadcast"
	"github.com/jmehdipour/sms-relay/internal/service/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inbound webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		storeDB, err := db.OpenSubscriberStore(cfg)
		if err != nil {
			return fmt.Errorf("store connect: %w", err)
		}
		defer storeDB.Close()

		subscribers, err := repository.NewSubscribersRepository(storeDB)
		if err != nil {
			return err
		}

		classifier, err := command.NewClassifier(command.Vocabulary{
			Subscribe:   cfg.Relay.SubscribeWords,
			Unsubscribe: cfg.Relay.UnsubscribeWords,
		})
		if err != nil {
			return fmt.Errorf("classifier: %w", err)
		}

		disp, err := dispatcher.FromConfig(cfg)
		if err != nil {
			return fmt.Errorf("dispatcher: %w", err)
		}

		// broadcast events (optional)
		var publisher broadcast.Publisher = broadcast.NopPublisher{}
		if len(cfg.Kafka.Brokers) > 0 {
			p := kafka.NewBroadcastPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			defer func() { _ = p.Close() }()
			publisher = p
		}

		engine := broadcast.New(subscribers, disp, publisher, log)
		handler := relay.NewHandler(classifier, subscribers, engine, replies(cfg.Relay.Replies), log)

		deps := httpSrv.Deps{Relay: handler}

		// inbound de-duplication (optional)
		if cfg.Redis.Addr != "" {
			rdb, err := db.NewRedisClient(db.RedisOpts{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
			})
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = rdb.Close() }()
			deps.Dedup = middleware.NewRedisDeduper(rdb, cfg.Redis.DedupTTL)
		}

		// broadcast reports (optional)
		if cfg.ClickHouse.DSN != "" {
			chDB, err := db.OpenClickHouse(cfg)
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer func() { _ = chDB.Close() }()
			deps.Reports = repository.NewCHBroadcastsRepository(chDB)
		}

		server := httpSrv.NewServer(cfg, log, deps)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}

// replies falls back to the built-in text for any reply left empty.
func replies(c config.RepliesConfig) relay.Replies {
	r := relay.DefaultReplies()
	if c.Subscribed != "" {
		r.Subscribed = c.Subscribed
	}
	if c.Unsubscribed != "" {
		r.Unsubscribed = c.Unsubscribed
	}
	return r
}
