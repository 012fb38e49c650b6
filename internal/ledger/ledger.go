package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/cadence/pkg/api"
)

// Ledger keeps short-lived coordination state in Redis
type Ledger struct {
	client *redis.Client
	prefix string
}

// Config describes the Redis connection used by a Ledger
type Config struct {
	Addr     string
	Password string
	Prefix   string
	DB       int
}

const (
	// CounterTTL keeps a day's counter past the UTC day boundary so that
	// late reads still see it
	CounterTTL = 48 * time.Hour

	dayFormat = "20060102"
)

var (
	ErrCapReached = errors.New("daily cap reached")
	ErrConnect    = errors.New("failed to connect to redis")
)

// New wraps an existing Redis client
func New(client *redis.Client, prefix string) *Ledger {
	return &Ledger{
		client: client,
		prefix: prefix,
	}
}

// Open connects to Redis and verifies the connection
func Open(ctx context.Context, cfg Config) (*Ledger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return New(client, cfg.Prefix), nil
}

// Claim atomically marks an event id as seen. It returns false when the
// id was already claimed within ttl
func (l *Ledger) Claim(
	ctx context.Context, eventID string, ttl time.Duration,
) (bool, error) {
	return l.client.SetNX(ctx, l.eventKey(eventID), 1, ttl).Result()
}

// Release drops a claim so a redelivery of the event can be processed
func (l *Ledger) Release(ctx context.Context, eventID string) error {
	return l.client.Del(ctx, l.eventKey(eventID)).Err()
}

// Reserve takes one unit of the account's daily cap for kind on the UTC
// day of at. A cap of zero or less means unlimited. Over-cap reservations
// are rolled back and return ErrCapReached
func (l *Ledger) Reserve(
	ctx context.Context, acct api.AccountID, kind api.ActionKind,
	at time.Time, limit int,
) (int64, error) {
	key := l.counterKey(acct, kind, at)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := l.client.Expire(ctx, key, CounterTTL).Err(); err != nil {
			return n, err
		}
	}
	if limit > 0 && n > int64(limit) {
		if err := l.client.Decr(ctx, key).Err(); err != nil {
			return n, err
		}
		return n - 1, fmt.Errorf("%w: %s %s %d", ErrCapReached, acct, kind, limit)
	}
	return n, nil
}

// Refund returns a reserved unit, used when the command was not executed
func (l *Ledger) Refund(
	ctx context.Context, acct api.AccountID, kind api.ActionKind, at time.Time,
) error {
	key := l.counterKey(acct, kind, at)
	n, err := l.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n < 0 {
		return l.client.Set(ctx, key, 0, CounterTTL).Err()
	}
	return nil
}

// Count returns the units used for the account, kind and UTC day
func (l *Ledger) Count(
	ctx context.Context, acct api.AccountID, kind api.ActionKind, at time.Time,
) (int64, error) {
	n, err := l.client.Get(ctx, l.counterKey(acct, kind, at)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Ping checks the Redis connection
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (l *Ledger) Close() error {
	return l.client.Close()
}

func (l *Ledger) eventKey(id string) string {
	return fmt.Sprintf("%s:webhook:%s", l.prefix, id)
}

func (l *Ledger) counterKey(
	acct api.AccountID, kind api.ActionKind, at time.Time,
) string {
	return fmt.Sprintf("%s:caps:%s:%s:%s",
		l.prefix, acct, kind, at.UTC().Format(dayFormat))
}
