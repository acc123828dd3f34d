package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/config"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/kafka"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/backend"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/mongodb"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/repo/realtime/memory"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/server"
	pkgmdw "github.com/nguyentranbao-ct/field-booking-admin/internal/server/middleware"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/usecase"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
)

// newRealtime opens the realtime channel selected by REALTIME_DRIVER. The
// returned pingers feed the health endpoint.
func newRealtime(lc fx.Lifecycle, cfg *config.Config) (realtime.Channel, map[string]server.Pinger, error) {
	if cfg.Realtime.Driver == config.RealtimeDriverMemory {
		store := memory.New()
		lc.Append(fx.StopHook(store.Close))
		return store, map[string]server.Pinger{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := mongodb.NewConnection(ctx, mongodb.ConnectionConfig{
		AppName:  "field-booking-admin",
		URI:      cfg.Database.URI,
		Hosts:    cfg.Database.Hosts,
		Direct:   cfg.Database.Direct,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		AuthDB:   cfg.Database.AuthDB,
		Database: cfg.Database.Database,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init mongo client: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return err
			}
			return mongodb.NewMigrator(db).Run(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return db.Close(ctx)
		},
	})
	return mongodb.NewNodeStore(db), map[string]server.Pinger{"mongodb": db}, nil
}

func newEventPublisher(lc fx.Lifecycle, cfg *config.Config) (usecase.EventPublisher, error) {
	pub, err := kafka.NewPublisher(kafka.Config{
		Enabled:  cfg.Kafka.Enabled,
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		ClientID: cfg.Kafka.ClientID,
		Timeout:  cfg.Kafka.Timeout,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(pub.Close))
	return pub, nil
}

func newBackendClient(cfg *config.Config) (backend.Client, error) {
	log := logger.MustNamed("backend")
	return backend.NewClient(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		Timeout:   cfg.Backend.Timeout,
		CacheSize: cfg.Backend.CacheSize,
	}, func() {
		log.Warnw("backend rejected the agent credentials")
	})
}

func newAuthUseCase(cfg *config.Config, client backend.Client) *usecase.AuthUseCase {
	return usecase.NewAuthUseCase(client, usecase.AuthOptions{
		RequiredRole: cfg.Auth.RequiredRole,
		Leeway:       cfg.Auth.Leeway,
		VerifySecret: cfg.Auth.VerifySecret,
	})
}

// newChatUseCase waits for in-flight event publishing on stop, before the
// publisher itself is closed.
func newChatUseCase(lc fx.Lifecycle, cfg *config.Config, channel realtime.Channel, events usecase.EventPublisher) *usecase.ChatUseCase {
	uc := usecase.NewChatUseCase(channel, events, usecase.ChatOptions{
		DetectTimeout:   cfg.Chat.DetectTimeout,
		PresenceTimeout: cfg.Chat.PresenceTimeout,
	})
	lc.Append(fx.StopHook(uc.Wait))
	return uc
}

func asTokenAuthenticator(uc *usecase.AuthUseCase) pkgmdw.TokenAuthenticator {
	return uc
}
