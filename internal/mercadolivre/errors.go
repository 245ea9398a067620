package mercadolivre

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

var (
	// ErrNotConfigured means the app credentials needed for a real provider
	// call are missing. Callers fall back to demo mode or show setup steps.
	ErrNotConfigured = errors.New("mercado livre app credentials not configured")

	// ErrVerifierNotFound means no PKCE verifier is pending for the session,
	// either because authorization never started or the verifier was consumed.
	ErrVerifierNotFound = fmt.Errorf("%w: pkce code verifier not found", ErrNotConfigured)

	// ErrUnauthorized is returned by read calls on HTTP 401. It is consumed by
	// the sync and import orchestrators to drive the refresh-and-retry cycle.
	ErrUnauthorized = errors.New("mercado livre rejected the access token")
)

// ExchangeError is a provider rejection of an authorization code exchange,
// carrying a message fit for the end user.
type ExchangeError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ExchangeError) Error() string {
	return e.Message
}

// TransportError wraps network or decoding failures talking to the provider.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mercado livre %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a non-auth, non-success response from a read endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercado livre API error %d: %s", e.StatusCode, e.Body)
}

// translateExchangeError maps provider error codes to user-facing messages.
func translateExchangeError(err error, redirectURI string) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &TransportError{Op: "token exchange", Err: err}
	}

	status := http.StatusBadRequest
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	code := re.ErrorCode
	if code == "" {
		code = gjson.GetBytes(re.Body, "error").String()
	}

	var msg string
	switch code {
	case "invalid_grant":
		msg = "The authorization code has expired or was already used. Please connect your account again."
	case "invalid_client":
		msg = "Invalid Mercado Livre app credentials. Check ML_CLIENT_ID and ML_CLIENT_SECRET."
	case "redirect_uri_mismatch":
		msg = fmt.Sprintf("Redirect URI mismatch. Register exactly %s as the redirect URI of your Mercado Livre app.", redirectURI)
	default:
		detail := gjson.GetBytes(re.Body, "message").String()
		if detail == "" {
			detail = re.ErrorDescription
		}
		if detail == "" {
			detail = http.StatusText(status)
		}
		msg = fmt.Sprintf("Mercado Livre token exchange failed (%s): %s", code, detail)
	}

	return &ExchangeError{StatusCode: status, Code: code, Message: msg}
}
