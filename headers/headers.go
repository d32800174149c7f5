// Package headers defines HTTP header constants used by the SDK.
package headers

const (
	// RequestID is the header for request correlation.
	// The SDK generates one per request unless the caller supplied it.
	RequestID = "X-Request-Id"

	// Authorization carries the bearer token issued by /api/login.
	Authorization = "Authorization"

	// AcceptLanguage forwards the caller's locale so server messages match the UI.
	AcceptLanguage = "Accept-Language"
)
