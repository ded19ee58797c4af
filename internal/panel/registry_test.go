package panel

import "testing"

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	p1 := NewClient(Endpoint{
		Name: "panel1", BaseURL: "https://one.example.com",
		Username: "a", Password: "b", URLMarker: "one.example.com",
	}, Options{}, nil)
	p2 := NewClient(Endpoint{
		Name: "panel2", BaseURL: "https://two.example.com",
		Username: "a", Password: "b", URLMarker: "two.example.com",
	}, Options{}, nil)
	r, err := NewRegistry(p1, p2)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func TestPeerRouting(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name     string
		subURL   string
		wantPeer string
		wantSlot int
	}{
		{"origin panel1 mirrors to panel2", "https://one.example.com/sub/abc", "panel2", Slot2},
		{"origin panel2 mirrors to panel1", "https://two.example.com/sub/abc", "panel1", Slot1},
		{"unrecognized url treated as panel2 origin", "https://elsewhere.example.net/sub/abc", "panel1", Slot1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer, slot := r.Peer(tt.subURL)
			if peer.Endpoint().Name != tt.wantPeer {
				t.Errorf("Peer() = %s, want %s", peer.Endpoint().Name, tt.wantPeer)
			}
			if slot != tt.wantSlot {
				t.Errorf("Peer() slot = %d, want %d", slot, tt.wantSlot)
			}
		})
	}
}

func TestOriginSlot(t *testing.T) {
	r := testRegistry(t)

	if got := r.OriginSlot("https://one.example.com/sub/x"); got != Slot1 {
		t.Errorf("OriginSlot(panel1 url) = %d, want %d", got, Slot1)
	}
	if got := r.OriginSlot("https://two.example.com/sub/x"); got != Slot2 {
		t.Errorf("OriginSlot(panel2 url) = %d, want %d", got, Slot2)
	}
}

func TestByBaseURL(t *testing.T) {
	r := testRegistry(t)

	c, err := r.ByBaseURL("https://two.example.com")
	if err != nil {
		t.Fatalf("ByBaseURL() error = %v", err)
	}
	if c.Endpoint().Name != "panel2" {
		t.Errorf("ByBaseURL() = %s, want panel2", c.Endpoint().Name)
	}

	if _, err := r.ByBaseURL("https://gone.example.com"); err == nil {
		t.Error("ByBaseURL(unknown) expected error")
	}
}

func TestRegistryRequiresMarker(t *testing.T) {
	p1 := NewClient(Endpoint{Name: "panel1", BaseURL: "https://one.example.com"}, Options{}, nil)
	p2 := NewClient(Endpoint{Name: "panel2", BaseURL: "https://two.example.com"}, Options{}, nil)
	if _, err := NewRegistry(p1, p2); err == nil {
		t.Error("NewRegistry() without marker expected error")
	}
}
