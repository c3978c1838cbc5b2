package security

// Event type constants for security audit logging.
const (
	// EventParAdmitted is logged when a pushed authorization request is stored
	EventParAdmitted = "par_admitted"

	// EventParRejected is logged when a pushed authorization request fails validation
	EventParRejected = "par_rejected"

	// EventParRedeemed is logged when a request_uri is redeemed
	EventParRedeemed = "par_redeemed"

	// EventParRedemptionFailed is logged when a request_uri cannot be redeemed
	EventParRedemptionFailed = "par_redemption_failed"

	// EventAuthFailure is logged when client authentication fails
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a caller exceeds the rate limit
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventInternalError is logged when admission fails for a server-side reason
	EventInternalError = "internal_error"
)
