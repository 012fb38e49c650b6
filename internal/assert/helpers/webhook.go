package helpers

import (
	"encoding/json"
	"time"

	"github.com/kode4food/cadence/pkg/api"
)

// Webhook builds an agent notification for the seeded contact ct, sent by
// the test account at the given time. A nil data map is omitted
func Webhook(
	typ, event string, ct api.ContactID, at time.Time, data map[string]any,
) []byte {
	payload := map[string]any{
		"type":         typ,
		"event":        event,
		"profile":      ProfileURL(ct),
		"userid":       string(TestAccountID),
		"timestamp_ms": at.UnixMilli(),
	}
	if data != nil {
		payload["data"] = data
	}
	res, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return res
}
