// Package oauth contains DTOs for OAuth2/OIDC endpoints.
package oauth

// AuthorizeRequest contains the parsed query params for GET /oauth/authorize.
type AuthorizeRequest struct {
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope"`
	State               string `json:"state"`
	Nonce               string `json:"nonce"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Prompt              string `json:"prompt"`  // "none" | "login" | "consent"
	MaxAge              string `json:"max_age"` // seconds since last auth
}

// AuthResultType indicates the outcome of the authorization request.
type AuthResultType int

const (
	// AuthResultSuccess - issue auth code and redirect
	AuthResultSuccess AuthResultType = iota
	// AuthResultNeedLogin - redirect to login UI
	AuthResultNeedLogin
	// AuthResultNeedConsent - redirect to consent UI
	AuthResultNeedConsent
	// AuthResultRedirectError - redirect to client with error params
	AuthResultRedirectError
	// AuthResultJSONError - respond JSON error, no trusted redirect target
	AuthResultJSONError
)

// AuthResult is the outcome from AuthorizeService.Authorize.
type AuthResult struct {
	Type AuthResultType

	// For Success
	Code  string
	State string

	// For NeedLogin / NeedConsent
	LoginURL   string
	ConsentURL string

	// For errors
	ErrorCode        string
	ErrorDescription string
	HTTPStatus       int // for JSONError

	// Common
	RedirectURI string
}

// SessionPayload represents cached session data from cookie login.
// Stored in cache with key "sid:<hash(cookie_value)>".
type SessionPayload struct {
	UserID   string `json:"user_id"`
	AuthTime int64  `json:"auth_time"` // unix seconds of last authentication
	Expires  int64  `json:"expires"`   // unix seconds
}

// UserInfoResponse is the OIDC userinfo payload. Fields beyond sub are
// scope-gated.
type UserInfoResponse struct {
	Sub               string `json:"sub"`
	Email             string `json:"email,omitempty"`
	EmailVerified     *bool  `json:"email_verified,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// IntrospectResponse is the RFC 7662 introspection payload.
type IntrospectResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	JTI       string `json:"jti,omitempty"`
}

// DiscoveryDocument is the OIDC discovery metadata.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
}
