package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Archive stores one JSON object per received webhook
	Archive struct {
		bucket Bucket
		prefix string
	}

	// Bucket is the subset of *blob.Bucket used by an Archive
	Bucket interface {
		WriteAll(context.Context, string, []byte, *blob.WriterOptions) error
		ReadAll(context.Context, string) ([]byte, error)
		Close() error
	}

	// Object is the archived form of a webhook delivery
	Object struct {
		ReceivedAt time.Time       `json:"received_at"`
		Payload    json.RawMessage `json:"payload"`
		EventID    string          `json:"event_id"`
		Type       string          `json:"type"`
		Event      string          `json:"event"`
	}
)

const contentType = "application/json"

var (
	ErrBucketRequired = errors.New("bucket is required")
	ErrEventRequired  = errors.New("webhook event is required")
	ErrNotFound       = errors.New("archived object not found")
	ErrOpenBucket     = errors.New("failed to open archive bucket")
)

// Open opens the bucket named by url. The driver for the url scheme must
// be registered by the caller through a blank import
func Open(ctx context.Context, url, prefix string) (*Archive, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenBucket, err)
	}
	return New(b, prefix)
}

// New wraps an already opened bucket
func New(bucket Bucket, prefix string) (*Archive, error) {
	if bucket == nil {
		return nil, ErrBucketRequired
	}
	return &Archive{
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Put archives raw under a key derived from the event. It returns the key
func (a *Archive) Put(
	ctx context.Context, ev *api.WebhookEvent, raw []byte,
) (string, error) {
	if ev == nil {
		return "", ErrEventRequired
	}

	obj := Object{
		ReceivedAt: ev.ReceivedAt,
		Payload:    normalizeRaw(raw),
		EventID:    ev.ID,
		Type:       ev.Type,
		Event:      ev.Name,
	}
	data, err := json.Marshal(&obj)
	if err != nil {
		return "", err
	}

	key := Key(a.prefix, ev)
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := a.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return "", err
	}
	return key, nil
}

// Get reads an archived object back
func (a *Archive) Get(ctx context.Context, key string) (*Object, error) {
	data, err := a.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// Close closes the underlying bucket
func (a *Archive) Close() error {
	return a.bucket.Close()
}

// Key returns the object key for an event: prefix/yyyy/mm/dd/<id>.json
func Key(prefix string, ev *api.WebhookEvent) string {
	at := ev.ReceivedAt.UTC()
	key := fmt.Sprintf("%04d/%02d/%02d/%s.json",
		at.Year(), at.Month(), at.Day(), ev.ID)
	if prefix == "" {
		return key
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + key
}

func normalizeRaw(raw []byte) json.RawMessage {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		b, _ := json.Marshal(string(raw))
		return b
	}
	return raw
}
