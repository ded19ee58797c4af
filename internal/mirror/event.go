// Package mirror applies panel webhook events to the peer panel: parsing,
// deduplication, the synchronous mirror flow, and the background replay of
// operations that failed.
package mirror

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Action is the webhook event type.
type Action string

const (
	ActionUserCreated     Action = "user_created"
	ActionUserUpdated     Action = "user_updated"
	ActionUserExpired     Action = "user_expired"
	ActionReachedDaysLeft Action = "reached_days_left"
)

// TTLFor returns the deduplication window for an action. Panels re-emit
// expiry notices aggressively, so those get much longer windows than the
// create/update actions that should pass through quickly.
func TTLFor(action Action) time.Duration {
	switch action {
	case ActionReachedDaysLeft:
		return time.Hour
	case ActionUserExpired:
		return 5 * time.Minute
	default:
		return 20 * time.Second
	}
}

// Event is one element of the webhook payload array.
type Event struct {
	Username string    `json:"username"`
	Action   Action    `json:"action"`
	User     EventUser `json:"user"`
}

// EventUser is the account snapshot embedded in an event. Panels are
// inconsistent about field shapes, so the lenient types below absorb the
// variants instead of failing the whole batch.
type EventUser struct {
	SubscriptionURL string        `json:"subscription_url"`
	Inbounds        EventInbounds `json:"inbounds"`
	Proxies         EventProxies  `json:"proxies"`
	Expire          FlexInt64     `json:"expire"`
}

// EventProxies mirrors the panel proxy settings in a webhook payload.
type EventProxies struct {
	VLESS struct {
		ID string `json:"id"`
	} `json:"vless"`
}

// FlexInt64 decodes an integer that some panels send as a JSON number and
// others as a numeric string. null, empty, and garbage all decode to 0.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = 0
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexInt64(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt64(n)
	return nil
}

// EventInbounds decodes the per-protocol inbound tags. The vless entry is
// normally a list but some panels send a single scalar tag; that scalar is
// wrapped into a one-element list.
type EventInbounds struct {
	VLESS []string `json:"vless"`
}

func (i *EventInbounds) UnmarshalJSON(data []byte) error {
	var raw struct {
		VLESS json.RawMessage `json:"vless"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	i.VLESS = []string{}
	if len(raw.VLESS) == 0 || bytes.Equal(bytes.TrimSpace(raw.VLESS), []byte("null")) {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw.VLESS, &list); err == nil {
		i.VLESS = list
		return nil
	}

	var single string
	if err := json.Unmarshal(raw.VLESS, &single); err == nil {
		i.VLESS = []string{single}
		return nil
	}
	return nil
}

// ParseEvents decodes a webhook request body into its event list.
// The payload is always a JSON array, even for a single event.
func ParseEvents(body []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	return events, nil
}
