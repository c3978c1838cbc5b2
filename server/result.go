package server

import "fmt"

// Result is the outcome of Server.Admit: Admitted, ClientError or CoreError.
type Result interface {
	isResult()
}

// Admitted means the request was stored. ExpiresIn is the lifetime in seconds.
type Admitted struct {
	Reference string
	ExpiresIn int64
}

// RequestURI returns the request_uri for the admitted reference.
func (a Admitted) RequestURI() string {
	return RequestURI(a.Reference)
}

// ClientError is a rejection caused by the caller. Code and Description are safe
// to return to the client.
type ClientError struct {
	Code        string
	Description string
}

func (e ClientError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// CoreError is a failure of the server or its dependencies. Only Code and the fixed
// ServerErrorDescription are ever returned to the client; Err is for logs.
type CoreError struct {
	Code        string
	Description string
	Err         error
}

func (e CoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e CoreError) Unwrap() error {
	return e.Err
}

func (Admitted) isResult()    {}
func (ClientError) isResult() {}
func (CoreError) isResult()   {}

func newCoreError(err error) CoreError {
	return CoreError{
		Code:        ErrorCodeServerError,
		Description: ServerErrorDescription,
		Err:         err,
	}
}
