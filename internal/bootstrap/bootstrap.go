// Package bootstrap opens the storage and messaging backends selected in
// the configuration.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"conference/internal/config"
	"conference/internal/docstore"
	"conference/internal/notify"
	"conference/internal/queue"
	"conference/internal/store"
)

// NotificationsKey is the Redis list used by the Redis queue backend.
const NotificationsKey = "conference:notifications"

// Backends holds the opened connections.
type Backends struct {
	Docs   docstore.Store
	Redis  *store.Redis
	Queue  queue.Queue
	Health map[string]func(context.Context) bool

	closers []func()
}

// Close releases every connection in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open connects the document store, Redis when something needs it, and the
// notification queue. On error everything opened so far is closed.
func Open(ctx context.Context, cfg config.App, log zerolog.Logger) (*Backends, error) {
	b := &Backends{Health: map[string]func(context.Context) bool{}}
	if err := b.openStore(ctx, cfg, log); err != nil {
		b.Close()
		return nil, err
	}
	if NeedsRedis(cfg) {
		b.Redis = store.NewRedis(cfg.RedisAddr)
		if b.Redis == nil {
			b.Close()
			return nil, fmt.Errorf("REDIS_ADDR is required by the configured backends")
		}
		b.Health["redis"] = b.Redis.Healthy
		b.closers = append(b.closers, func() { _ = b.Redis.Close() })
	}
	if err := b.openQueue(cfg, log); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// NeedsRedis reports whether any configured backend uses Redis.
func NeedsRedis(cfg config.App) bool {
	return strings.EqualFold(cfg.QueueBackend, "redis") || strings.EqualFold(cfg.RateLimitBackend, "redis")
}

func (b *Backends) openStore(ctx context.Context, cfg config.App, log zerolog.Logger) error {
	switch strings.ToLower(cfg.StoreBackend) {
	case "memory":
		log.Warn().Msg("using in-memory document store, data is lost on restart")
		b.Docs = docstore.NewMemory()
	case "postgres", "":
		db, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		b.Health["db"] = db.Healthy
		return b.useSQL(ctx, db, docstore.Postgres)
	case "sqlite":
		db, err := store.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		b.Health["db"] = db.Healthy
		return b.useSQL(ctx, db, docstore.SQLite)
	case "mongo", "mongodb":
		m, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = m.Close(context.Background()) })
		b.Health["db"] = m.Healthy
		b.Docs = docstore.NewMongo(m.DB)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return nil
}

func (b *Backends) useSQL(ctx context.Context, db *store.DB, dialect docstore.Dialect) error {
	docs := docstore.NewSQL(db.Client, dialect)
	if err := docs.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	b.Docs = docs
	return nil
}

func (b *Backends) openQueue(cfg config.App, log zerolog.Logger) error {
	switch strings.ToLower(cfg.QueueBackend) {
	case "memory", "":
		b.Queue = queue.NewInMemory(64)
	case "redis":
		b.Queue = queue.NewRedisQueue(b.Redis.Client, NotificationsKey)
	case "rabbitmq", "amqp":
		q, err := queue.NewRabbitQueue(cfg.RabbitMQURL, cfg.RabbitMQQueue, log)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = q.Close() })
		b.Queue = q
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
	return nil
}

// InProcess reports whether notifications must be dispatched by the API
// process itself because the queue is not shared.
func (b *Backends) InProcess() bool {
	_, ok := b.Queue.(*queue.InMemory)
	return ok
}

// Mailer returns the SMTP mailer, or a logging mailer when no relay is set.
func Mailer(cfg config.App, log zerolog.Logger) notify.Mailer {
	if cfg.SMTPAddr == "" {
		log.Warn().Msg("SMTP_ADDR not set, notifications are logged instead of mailed")
		return notify.LogMailer{Log: log}
	}
	return notify.SMTPMailer{Addr: cfg.SMTPAddr, User: cfg.SMTPUser, Password: cfg.SMTPPassword, From: cfg.MailFrom}
}
