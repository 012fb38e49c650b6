package reconcile

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kode4food/cadence/pkg/api"
)

// Delivery is one parsed webhook payload
type Delivery struct {
	Event     *api.WebhookEvent
	Raw       []byte
	MessageID string
	Subject   string
	Body      string
}

var ErrInvalidPayload = errors.New("invalid webhook payload")

var (
	eventIDPaths   = []string{"id", "event_id", "data.event_id"}
	profilePaths   = []string{"profile", "data.profile", "data.profile_url"}
	messageIDPaths = []string{"data.message_id", "data.id", "message_id"}
	bodyPaths      = []string{"data.message", "data.text", "data.body"}
)

// Parse reads a webhook payload of the form {type, event, profile, userid,
// data, timestamp_ms}. A payload without an id is identified by the SHA-1
// of its bytes, so identical redeliveries collapse
func Parse(raw []byte, now time.Time) (*Delivery, error) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidPayload)
	}

	typ := strings.ToLower(strings.TrimSpace(doc.Get("type").String()))
	name := strings.ToLower(strings.TrimSpace(doc.Get("event").String()))
	if typ == "" || name == "" {
		return nil, fmt.Errorf("%w: type and event required", ErrInvalidPayload)
	}

	id := firstString(doc, eventIDPaths...)
	if id == "" {
		sum := sha1.Sum(raw)
		id = hex.EncodeToString(sum[:])
	}

	ts := now.UTC()
	if ms := doc.Get("timestamp_ms"); ms.Exists() && ms.Int() > 0 {
		ts = time.UnixMilli(ms.Int()).UTC()
	}

	ev := &api.WebhookEvent{
		Timestamp:  ts,
		ReceivedAt: now.UTC(),
		ID:         id,
		Type:       typ,
		Name:       name,
		Profile:    firstString(doc, profilePaths...),
		AccountID:  api.AccountID(doc.Get("userid").String()),
		CampaignID: api.CampaignID(doc.Get("data.campaign_id").String()),
		ContactID:  api.ContactID(doc.Get("data.contact_id").String()),
	}

	return &Delivery{
		Event:     ev,
		Raw:       raw,
		MessageID: firstString(doc, messageIDPaths...),
		Subject:   doc.Get("data.subject").String(),
		Body:      firstString(doc, bodyPaths...),
	}, nil
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// messageKey identifies the delivered message for dedup. Without an agent
// message id the event id stands in, so a replayed event matches itself
func (d *Delivery) messageKey() string {
	if d.MessageID != "" {
		return d.MessageID
	}
	return d.Event.ID
}
