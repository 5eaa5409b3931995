package oauth

import "errors"

// Token endpoint errors (OAuth2 standard).
var (
	ErrTokenInvalidRequest       = errors.New("invalid_request")
	ErrTokenInvalidClient        = errors.New("invalid_client")
	ErrTokenInvalidGrant         = errors.New("invalid_grant")
	ErrTokenUnauthorizedClient   = errors.New("unauthorized_client")
	ErrTokenUnsupportedGrantType = errors.New("unsupported_grant_type")
	ErrTokenInvalidScope         = errors.New("invalid_scope")
	ErrTokenServerError          = errors.New("server_error")
)

// Internal reason codes. Never sent to the client verbatim; they drive
// logging, audit and metrics labels.
const (
	ReasonClientNotFound          = "CLIENT_NOT_FOUND"
	ReasonClientInactive          = "CLIENT_INACTIVE"
	ReasonClientSecretRequired    = "CLIENT_SECRET_REQUIRED"
	ReasonInvalidClientSecret     = "INVALID_CLIENT_SECRET"
	ReasonClientMisconfigured     = "CLIENT_SECRET_NOT_CONFIGURED"
	ReasonAuthCodeNotFound        = "AUTH_CODE_NOT_FOUND"
	ReasonAuthCodeUsed            = "AUTH_CODE_USED"
	ReasonAuthCodeExpired         = "AUTH_CODE_EXPIRED"
	ReasonAuthCodeClientMismatch  = "AUTH_CODE_CLIENT_ID_MISMATCH"
	ReasonAuthCodeRedirectURI     = "AUTH_CODE_REDIRECT_URI_MISMATCH"
	ReasonPKCEVerificationFailed  = "PKCE_VERIFICATION_FAILED"
	ReasonRefreshTokenNotFound    = "REFRESH_TOKEN_NOT_FOUND"
	ReasonRefreshTokenExpired     = "REFRESH_TOKEN_EXPIRED"
	ReasonRefreshTokenRevoked     = "REFRESH_TOKEN_REVOKED"
	ReasonRefreshTokenReused      = "REFRESH_TOKEN_REUSED"
	ReasonRefreshTokenMalformed   = "REFRESH_TOKEN_MALFORMED"
	ReasonScopeNotAllowed         = "SCOPE_NOT_ALLOWED"
	ReasonGrantTypeNotAllowed     = "GRANT_TYPE_NOT_ALLOWED"
	ReasonPublicClientCredentials = "PUBLIC_CLIENT_CREDENTIALS"
)

// GrantError envuelve un error OAuth estándar con el reason interno y una
// descripción apta para error_description.
type GrantError struct {
	Sentinel    error  // uno de los ErrToken* de arriba
	Reason      string // reason code interno
	Description string
}

func (e *GrantError) Error() string {
	return e.Sentinel.Error() + ": " + e.Reason
}

func (e *GrantError) Unwrap() error { return e.Sentinel }

// failGrant arma un GrantError.
func failGrant(sentinel error, reason, description string) error {
	return &GrantError{Sentinel: sentinel, Reason: reason, Description: description}
}

// ReasonOf extrae el reason code de un error, si lo lleva.
func ReasonOf(err error) string {
	var ge *GrantError
	if errors.As(err, &ge) {
		return ge.Reason
	}
	return ""
}

// DescriptionOf extrae la descripción de un error, si la lleva.
func DescriptionOf(err error) string {
	var ge *GrantError
	if errors.As(err, &ge) {
		return ge.Description
	}
	return ""
}
