package panel

import (
	"fmt"
	"strings"
)

// Slot numbers the two panels. Link records store one subscription URL per
// slot, so the slot is part of the durable schema, not just config order.
const (
	Slot1 = 1
	Slot2 = 2
)

// Registry is the explicit two-entry routing table for the panel pair.
// Webhook payloads carry no panel identity, so routing matches the first
// panel's URL marker against the embedded subscription URL: marker present
// means the event originated on panel 1 and mirrors to panel 2, marker
// absent means the reverse.
type Registry struct {
	panels [2]*Client
}

// NewRegistry builds the routing table from the two configured panels, in
// slot order.
func NewRegistry(panel1, panel2 *Client) (*Registry, error) {
	if panel1 == nil || panel2 == nil {
		return nil, fmt.Errorf("registry requires two panel clients")
	}
	if panel1.endpoint.URLMarker == "" {
		return nil, fmt.Errorf("panel %q has no url marker", panel1.endpoint.Name)
	}
	return &Registry{panels: [2]*Client{panel1, panel2}}, nil
}

// Panel returns the client in the given slot.
func (r *Registry) Panel(slot int) (*Client, error) {
	switch slot {
	case Slot1:
		return r.panels[0], nil
	case Slot2:
		return r.panels[1], nil
	default:
		return nil, fmt.Errorf("no panel in slot %d", slot)
	}
}

// Primary returns the slot 1 panel, used when an operation needs a starting
// panel and has no routing input.
func (r *Registry) Primary() *Client {
	return r.panels[0]
}

// All returns both clients in slot order.
func (r *Registry) All() []*Client {
	return []*Client{r.panels[0], r.panels[1]}
}

// OriginSlot reports which slot a subscription URL belongs to.
func (r *Registry) OriginSlot(subscriptionURL string) int {
	if strings.Contains(subscriptionURL, r.panels[0].endpoint.URLMarker) {
		return Slot1
	}
	return Slot2
}

// Peer returns the mirror target for an event whose origin is identified by
// the subscription URL, along with the target's slot.
func (r *Registry) Peer(subscriptionURL string) (*Client, int) {
	if r.OriginSlot(subscriptionURL) == Slot1 {
		return r.panels[1], Slot2
	}
	return r.panels[0], Slot1
}

// ByBaseURL finds the client whose endpoint matches a stored panel URL.
// Used when replaying queued operations, which record the target by URL.
func (r *Registry) ByBaseURL(baseURL string) (*Client, error) {
	for _, c := range r.panels {
		if c.endpoint.BaseURL == baseURL {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no panel with base url %q", baseURL)
}
