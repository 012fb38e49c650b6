package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kode4food/cadence/pkg/api"
)

// Store is the gorm implementation of Repository. Inside an Update
// callback the Store wraps the transaction handle
type Store struct {
	db *gorm.DB
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	slowQueryThreshold = 500 * time.Millisecond
)

var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrOpen          = errors.New("failed to open database")
	ErrMigrate       = errors.New("failed to migrate database")
)

var models = []any{
	&api.Account{},
	&api.Campaign{},
	&api.Contact{},
	&api.CampaignContact{},
	&api.ContactTransition{},
	&api.Message{},
	&api.WebhookEvent{},
}

// Open connects to the database named by driver and dsn. SQLite
// connections are limited to one so that ":memory:" databases are shared
func Open(driver, dsn string, lg *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger(lg),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	if driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrOpen, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &Store{db: db}, nil
}

// New wraps an existing gorm handle
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema, including the unique index on
// (campaign_id, contact_id)
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrate, err)
	}
	return nil
}

// Ping verifies the connection is alive
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Update runs fn inside one transaction. fn must only use the Repository
// it is handed; the outer Store may block on a single-connection pool
func (s *Store) Update(ctx context.Context, fn func(Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func newLogger(lg *slog.Logger) logger.Interface {
	if lg == nil {
		lg = slog.Default()
	}
	return logger.New(
		slog.NewLogLogger(lg.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func mapError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
