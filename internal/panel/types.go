package panel

// User is the panel's account representation, as returned by the user
// endpoints.
type User struct {
	Username        string   `json:"username"`
	SubscriptionURL string   `json:"subscription_url"`
	Expire          int64    `json:"expire,omitempty"`
	Status          string   `json:"status,omitempty"`
	Proxies         Proxies  `json:"proxies"`
	Inbounds        Inbounds `json:"inbounds"`
}

// Proxies holds per-protocol proxy settings. Only vless is provisioned.
type Proxies struct {
	VLESS VLESSSettings `json:"vless"`
}

// VLESSSettings holds the vless proxy configuration for an account.
type VLESSSettings struct {
	ID   string `json:"id,omitempty"`
	Flow string `json:"flow,omitempty"`
}

// Inbounds maps protocols to inbound tags.
type Inbounds struct {
	VLESS []string `json:"vless"`
}

// vlessFlow is the flow control setting applied to every provisioned account.
const vlessFlow = "xtls-rprx-vision"

// createRequest is the POST /api/user body.
type createRequest struct {
	Username string   `json:"username"`
	Proxies  Proxies  `json:"proxies"`
	Inbounds Inbounds `json:"inbounds"`
	Expire   int64    `json:"expire,omitempty"`
}

// modifyRequest is the PUT /api/user/{username} body.
type modifyRequest struct {
	Expire int64 `json:"expire"`
}

// tokenResponse is the POST /api/admin/token response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
}
