package auth

// Known OAuth scopes used by the tracking API.
const (
	ScopeTrackingWrite = "tracking:write"
	ScopeTrackingRead  = "tracking:read"
)
