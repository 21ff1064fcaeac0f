package common

const (
	// AuthorizationHeaderName carries the bearer credential. Lookups are
	// case-insensitive on every transport.
	AuthorizationHeaderName = "Authorization"

	// BearerScheme is the only accepted authorization scheme.
	BearerScheme = "Bearer"

	// TenantHeaderName optionally pins the tenant database a request targets.
	TenantHeaderName = "X-Tenant-DB"

	// RequestIDHeaderName is echoed back on every HTTP response.
	RequestIDHeaderName = "X-Request-ID"
)
