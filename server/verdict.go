package server

// Verdict is the outcome of client authentication, produced before admission.
// The concrete types are Authenticated, Unauthenticated, AuthenticationSystemError
// and NoVerdict. A nil Verdict is treated as NoVerdict.
type Verdict interface {
	isVerdict()
}

// Authenticated means the caller proved it is ClientID.
type Authenticated struct {
	ClientID string
}

// Unauthenticated means the caller presented credentials that were rejected.
// ErrorCode is the OAuth error to return, typically invalid_client. An empty
// ErrorCode carries no error and is handled like NoVerdict.
type Unauthenticated struct {
	ErrorCode    string
	ErrorMessage string
}

// AuthenticationSystemError means authentication could not be decided because the
// authentication subsystem itself failed.
type AuthenticationSystemError struct {
	ErrorCode    string
	ErrorMessage string
	Err          error
}

// NoVerdict means no authentication was attempted.
type NoVerdict struct{}

func (Authenticated) isVerdict()             {}
func (Unauthenticated) isVerdict()           {}
func (AuthenticationSystemError) isVerdict() {}
func (NoVerdict) isVerdict()                 {}
