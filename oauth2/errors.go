package oauth2

import "fmt"

// Error codes from RFC 6749 §5.2. These are the only error strings that
// cross the wire; internal detail stays in error_description and even
// there is environment-gated for server_error.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeServerError          = "server_error"
	ErrorCodeAuthorizationPending = "authorization_pending"
)

// Error is an OAuth protocol error carrying the wire code and a
// human-readable description.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ErrorResponse is the JSON body of a failed token or authorize request.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// InvalidRequest builds an invalid_request error.
func InvalidRequest(description string) *Error {
	return &Error{Code: ErrorCodeInvalidRequest, Description: description}
}

// InvalidGrant builds an invalid_grant error.
func InvalidGrant(description string) *Error {
	return &Error{Code: ErrorCodeInvalidGrant, Description: description}
}

// UnsupportedGrantType builds an unsupported_grant_type error.
func UnsupportedGrantType(grantType string) *Error {
	return &Error{
		Code:        ErrorCodeUnsupportedGrantType,
		Description: fmt.Sprintf("Unsupported grant type: %s", grantType),
	}
}

// UnauthorizedClient builds an unauthorized_client error.
func UnauthorizedClient(description string) *Error {
	return &Error{Code: ErrorCodeUnauthorizedClient, Description: description}
}
