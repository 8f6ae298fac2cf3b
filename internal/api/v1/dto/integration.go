package dto

// AuthURLResponse is the provider authorize URL plus the state token the
// client must echo back.
type AuthURLResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// ConnectRequest finishes an OAuth flow with the provider's code.
type ConnectRequest struct {
	Code string `json:"code" validate:"required"`
}

// SyncResponse reports how many records a sync run wrote.
type SyncResponse struct {
	Synced int `json:"synced"`
}
