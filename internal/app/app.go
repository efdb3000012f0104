package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/suPer8Hu/chatcore/internal/ai"
	"github.com/suPer8Hu/chatcore/internal/cancel"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/chatctx"
	"github.com/suPer8Hu/chatcore/internal/config"
	"github.com/suPer8Hu/chatcore/internal/db"
	"github.com/suPer8Hu/chatcore/internal/files"
	"github.com/suPer8Hu/chatcore/internal/store/rabbitmq"
	"github.com/suPer8Hu/chatcore/internal/store/redisstore"
	"gorm.io/gorm"
)

// App holds the wired engine shared by the server, the worker and the CLI.
type App struct {
	Cfg      config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Files    *files.Store
	Bus      cancel.Bus
	Registry *ai.Registry
	Chat     *chat.Service

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Cfg: cfg, Logger: logger}

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.DB = gdb
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	disk, err := files.NewDisk(cfg.FilesDir)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("files dir: %w", err)
	}
	a.Files = files.NewStore(files.NewRepo(gdb), disk, logger.With("component", "files"))

	a.Bus = cancel.NewMemory()
	if cfg.RedisAddr != "" {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rds.Ping(ctx); err != nil {
			_ = rds.Close()
			_ = a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, rds.Close)
		a.Bus = rds.CancelBus()
	}

	a.Registry = ai.NewRegistry(ai.Deps{
		Builder: chatctx.NewBuilder(a.Files, logger.With("component", "context")),
		Defaults: ai.Defaults{
			Chat:        cfg.DefaultModel,
			TopicNaming: cfg.TopicNamingModel,
			Translate:   cfg.TranslateModel,
		},
		Logger: logger.With("component", "ai"),
	})
	if err := a.Registry.Configure(cfg.Providers...); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("providers: %w", err)
	}

	a.Chat = chat.NewService(chat.NewRepo(gdb), a.Registry, a.Files, a.Bus, logger.With("component", "chat"))
	return a, nil
}

// StartNamer installs the title-naming scheduler: a RabbitMQ publisher when
// RABBIT_URL is set, else the in-process throttled namer.
func (a *App) StartNamer() error {
	if a.Cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(a.Cfg.RabbitURL, a.Cfg.RabbitQueue)
		if err != nil {
			return fmt.Errorf("rabbit publisher: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		a.Chat.SetNamer(pub)
		a.Logger.Info("title naming via rabbitmq", "queue", a.Cfg.RabbitQueue)
		return nil
	}
	n := chat.NewLocalNamer(a.Chat, a.Cfg.TitleNamingRate, a.Logger.With("component", "namer"))
	a.closers = append(a.closers, func() error { n.Wait(); return nil })
	a.Chat.SetNamer(n)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
