package oidc

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/capsession/sdk/id"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestProviderRealm is the realm served by a TestProvider.
const TestProviderRealm = "test-realm"

// TestProvider is a local, disposable, Keycloak like realm which makes
// writing tests much easier. It serves the authorization endpoint for every
// flow and response mode, the token endpoint for the authorization_code and
// refresh_token grants (with PKCE), and the logout, userinfo, account,
// status frame, JWKS and discovery endpoints.
//
// Interactive authorization requests log the configured user in at once and
// set a KEYCLOAK_SESSION cookie. prompt=none requests only succeed when that
// cookie names a live session.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string
	jwks       *jose.JSONWebKeySet

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	mu                  sync.Mutex
	clientID            string
	allowedRedirectURIs []string
	subject             string
	username            string
	realmRoles          []string
	resourceRoles       map[string][]string
	accessTokenTTL      time.Duration
	clockOffset         time.Duration
	codes               map[string]testCode
	sessions            map[string]bool
	refreshError        string
	tokenGate           chan struct{}
	tokenCalls          map[string]int
	omitIDToken         bool
	denyLogin           bool

	t *testing.T
}

type testCode struct {
	nonce         string
	redirectURI   string
	codeChallenge string
	sessionID     string
}

// StartTestProvider creates a disposable TestProvider for clientID. It is
// stopped when the test completes.
func StartTestProvider(t *testing.T, clientID string) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		clientID:       clientID,
		subject:        "f9a3c2b1-5d1e-4a77-9c55-2b1f0f1e8d21",
		username:       "alice",
		realmRoles:     []string{"user"},
		resourceRoles:  map[string][]string{clientID: {"viewer"}},
		accessTokenTTL: 5 * time.Minute,
		codes:          map[string]testCode{},
		sessions:       map[string]bool{},
		tokenCalls:     map[string]int{},
		t:              t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()
	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the auth server URL.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the provider's TLS
// listener.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// RealmURL returns the issuer of the test realm.
func (p *TestProvider) RealmURL() string {
	return p.Addr() + "/realms/" + TestProviderRealm
}

// Config returns a Config for the provider's realm and client.
func (p *TestProvider) Config(t *testing.T, opt ...Option) *Config {
	t.Helper()
	c, err := NewConfig(p.Addr(), TestProviderRealm, p.clientID, append([]Option{WithProviderCA(p.caCert)}, opt...)...)
	require.NoError(t, err)
	return c
}

// SetAllowedRedirectURIs restricts the accepted redirect URIs. By default
// any redirect URI is accepted.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetRoles sets the roles granted in access tokens.
func (p *TestProvider) SetRoles(realm []string, resource map[string][]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realmRoles, p.resourceRoles = realm, resource
}

// SetAccessTokenTTL sets the lifetime of issued access tokens.
func (p *TestProvider) SetAccessTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenTTL = d
}

// SetClockOffset shifts the provider's clock, to simulate skew.
func (p *TestProvider) SetClockOffset(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clockOffset = d
}

// SetRefreshError makes the refresh_token grant fail with the OAuth2 error
// code. An empty code restores normal behavior.
func (p *TestProvider) SetRefreshError(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshError = code
}

// SetTokenGate holds every token endpoint request until gate is closed or
// receives a value. A nil gate stops holding requests.
func (p *TestProvider) SetTokenGate(gate chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenGate = gate
}

// OmitIDTokens stops the provider from issuing ID tokens.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// DenyLogin makes interactive authorization requests fail with
// access_denied.
func (p *TestProvider) DenyLogin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denyLogin = true
}

// TokenCalls returns how many token requests were received for grantType.
func (p *TestProvider) TokenCalls(grantType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls[grantType]
}

// EndSessions ends every provider session, as an administrator or another
// application logging the user out would.
func (p *TestProvider) EndSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for s := range p.sessions {
		p.sessions[s] = false
	}
}

// SignToken signs claims with the provider's key, for tests that need
// tokens the provider did not issue.
func (p *TestProvider) SignToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	return TestSignJWT(t, p.ecdsaPrivateKey, jwt.Claims{}, claims)
}

func (p *TestProvider) now() time.Time {
	return time.Now().Add(p.clockOffset)
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

// writeAuthResponse redirects to redirectURI with params in the location
// selected by mode.
func (p *TestProvider) writeAuthResponse(w http.ResponseWriter, req *http.Request, redirectURI string, mode ResponseMode, params url.Values) {
	sep := "#"
	if mode == ResponseModeQuery {
		sep = "?"
		if strings.Contains(redirectURI, "?") {
			sep = "&"
		}
	}
	http.Redirect(w, req, redirectURI+sep+params.Encode(), http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	prefix := "/realms/" + TestProviderRealm
	oidcPrefix := prefix + "/protocol/openid-connect"

	if req.URL.Path == oidcPrefix+"/token" {
		p.mu.Lock()
		gate := p.tokenGate
		p.mu.Unlock()
		if gate != nil {
			<-gate
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.t.Helper()

	switch req.URL.Path {
	case prefix + "/.well-known/openid-configuration":
		reply := struct {
			Issuer             string `json:"issuer"`
			AuthEndpoint       string `json:"authorization_endpoint"`
			TokenEndpoint      string `json:"token_endpoint"`
			JWKSURI            string `json:"jwks_uri"`
			UserinfoEndpoint   string `json:"userinfo_endpoint"`
			EndSessionEndpoint string `json:"end_session_endpoint"`
			CheckSessionIframe string `json:"check_session_iframe"`
		}{
			Issuer:             p.RealmURL(),
			AuthEndpoint:       p.Addr() + oidcPrefix + "/auth",
			TokenEndpoint:      p.Addr() + oidcPrefix + "/token",
			JWKSURI:            p.Addr() + oidcPrefix + "/certs",
			UserinfoEndpoint:   p.Addr() + oidcPrefix + "/userinfo",
			EndSessionEndpoint: p.Addr() + oidcPrefix + "/logout",
			CheckSessionIframe: p.Addr() + oidcPrefix + "/login-status-iframe.html",
		}
		_ = p.writeJSON(w, &reply)

	case oidcPrefix + "/auth":
		p.serveAuth(w, req)

	case oidcPrefix + "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.serveToken(w, req)

	case oidcPrefix + "/logout":
		if c, err := req.Cookie("KEYCLOAK_SESSION"); err == nil {
			p.sessions[c.Value[strings.LastIndex(c.Value, "/")+1:]] = false
		}
		http.SetCookie(w, &http.Cookie{Name: "KEYCLOAK_SESSION", Path: prefix + "/", MaxAge: -1})
		if r := req.URL.Query().Get("redirect_uri"); r != "" {
			http.Redirect(w, req, r, http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)

	case oidcPrefix + "/login-status-iframe.html":
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body></body></html>"))

	case oidcPrefix + "/certs":
		_ = p.writeJSON(w, p.jwks)

	case oidcPrefix + "/userinfo":
		claims, ok := p.bearerClaims(req)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = p.writeJSON(w, map[string]interface{}{
			"sub":                claims["sub"],
			"preferred_username": p.username,
			"email":              p.username + "@example.com",
		})

	case prefix + "/account":
		if _, ok := p.bearerClaims(req); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if req.Header.Get("Accept") != "application/json" {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		_ = p.writeJSON(w, &Profile{
			ID:            p.subject,
			Username:      p.username,
			Email:         p.username + "@example.com",
			FirstName:     "Alice",
			LastName:      "Liddell",
			Enabled:       true,
			EmailVerified: true,
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) serveAuth(w http.ResponseWriter, req *http.Request) {
	prefix := "/realms/" + TestProviderRealm
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri")
	if redirectURI == "" || !p.redirectAllowed(redirectURI) || qv.Get("client_id") != p.clientID {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	mode := ResponseMode(qv.Get("response_mode"))
	if mode == "" {
		mode = ResponseModeFragment
	}
	state := qv.Get("state")
	fail := func(code string) {
		p.writeAuthResponse(w, req, redirectURI, mode, url.Values{"state": {state}, "error": {code}})
	}
	if state == "" {
		fail("invalid_request")
		return
	}
	if !strings.Contains(" "+qv.Get("scope")+" ", " openid ") {
		fail("invalid_scope")
		return
	}

	var sessionID string
	if c, err := req.Cookie("KEYCLOAK_SESSION"); err == nil {
		s := c.Value[strings.LastIndex(c.Value, "/")+1:]
		if p.sessions[s] {
			sessionID = s
		}
	}
	switch {
	case sessionID != "" && qv.Get("prompt") != "login":
	case qv.Get("prompt") == "none":
		fail("login_required")
		return
	case p.denyLogin:
		fail("access_denied")
		return
	default:
		var err error
		sessionID, err = id.New("")
		require.NoError(p.t, err)
		p.sessions[sessionID] = true
		http.SetCookie(w, &http.Cookie{
			Name:  "KEYCLOAK_SESSION",
			Value: TestProviderRealm + "/" + p.subject + "/" + sessionID,
			Path:  prefix + "/",
		})
	}

	params := url.Values{"state": {state}, "session_state": {sessionID}}
	responseType := ResponseType(qv.Get("response_type"))
	switch responseType {
	case ResponseTypeCode, ResponseTypeCodeIDTokenToken:
		code, err := id.New("c")
		require.NoError(p.t, err)
		p.codes[code] = testCode{
			nonce:         qv.Get("nonce"),
			redirectURI:   redirectURI,
			codeChallenge: qv.Get("code_challenge"),
			sessionID:     sessionID,
		}
		params.Set("code", code)
	case ResponseTypeIDTokenToken:
	default:
		fail("unsupported_response_type")
		return
	}
	if responseType != ResponseTypeCode {
		if mode == ResponseModeQuery {
			fail("invalid_request")
			return
		}
		access, _, idToken := p.issue(qv.Get("nonce"), sessionID)
		params.Set("access_token", access)
		params.Set("token_type", "Bearer")
		params.Set("expires_in", strconv.Itoa(int(p.accessTokenTTL/time.Second)))
		if idToken != "" {
			params.Set("id_token", idToken)
		}
	}
	p.writeAuthResponse(w, req, redirectURI, mode, params)
}

func (p *TestProvider) serveToken(w http.ResponseWriter, req *http.Request) {
	grantType := req.FormValue("grant_type")
	p.tokenCalls[grantType]++
	if req.FormValue("client_id") != p.clientID {
		_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "unauthorized_client", "unknown client")
		return
	}

	var nonce, sessionID string
	switch grantType {
	case "authorization_code":
		code, ok := p.codes[req.FormValue("code")]
		delete(p.codes, req.FormValue("code"))
		switch {
		case !ok:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Code not valid")
			return
		case code.redirectURI != req.FormValue("redirect_uri"):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Incorrect redirect_uri")
			return
		case code.codeChallenge != "" && code.codeChallenge != testS256(req.FormValue("code_verifier")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}
		nonce, sessionID = code.nonce, code.sessionID

	case "refresh_token":
		if p.refreshError != "" {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, p.refreshError, "")
			return
		}
		tok, err := jwt.ParseSigned(req.FormValue("refresh_token"))
		if err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Invalid refresh token")
			return
		}
		var claims map[string]interface{}
		pub := p.jwks.Keys[0].Key
		if err := tok.Claims(pub, &claims); err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Invalid refresh token")
			return
		}
		sessionID, _ = claims["session_state"].(string)
		nonce, _ = claims["nonce"].(string)
		if !p.sessions[sessionID] {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Session not active")
			return
		}

	default:
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "")
		return
	}

	access, refresh, idToken := p.issue(nonce, sessionID)
	reply := struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token,omitempty"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		SessionState string `json:"session_state"`
	}{
		AccessToken:  access,
		RefreshToken: refresh,
		IDToken:      idToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(p.accessTokenTTL / time.Second),
		SessionState: sessionID,
	}
	_ = p.writeJSON(w, &reply)
}

// issue signs an access, refresh and ID token for a session.
func (p *TestProvider) issue(nonce, sessionID string) (access, refresh, idToken string) {
	now := p.now()
	std := jwt.Claims{
		Subject:  p.subject,
		Issuer:   p.RealmURL(),
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(p.accessTokenTTL)),
	}
	common := map[string]interface{}{
		"session_state": sessionID,
		"sid":           sessionID,
		"azp":           p.clientID,
	}
	if nonce != "" {
		common["nonce"] = nonce
	}
	resourceAccess := map[string]interface{}{}
	for res, roles := range p.resourceRoles {
		resourceAccess[res] = map[string]interface{}{"roles": roles}
	}
	accessClaims := map[string]interface{}{
		"typ":                "Bearer",
		"preferred_username": p.username,
		"realm_access":       map[string]interface{}{"roles": p.realmRoles},
		"resource_access":    resourceAccess,
	}
	for k, v := range common {
		accessClaims[k] = v
	}
	access = TestSignJWT(p.t, p.ecdsaPrivateKey, std, accessClaims)

	refreshStd := std
	refreshStd.Expiry = jwt.NewNumericDate(now.Add(30 * time.Minute))
	refreshClaims := map[string]interface{}{"typ": "Refresh"}
	for k, v := range common {
		refreshClaims[k] = v
	}
	refresh = TestSignJWT(p.t, p.ecdsaPrivateKey, refreshStd, refreshClaims)

	if !p.omitIDToken {
		idStd := std
		idStd.Audience = jwt.Audience{p.clientID}
		idClaims := map[string]interface{}{"typ": "ID", "preferred_username": p.username}
		for k, v := range common {
			idClaims[k] = v
		}
		idToken = TestSignJWT(p.t, p.ecdsaPrivateKey, idStd, idClaims)
	}
	return access, refresh, idToken
}

func (p *TestProvider) redirectAllowed(uri string) bool {
	if len(p.allowedRedirectURIs) == 0 {
		return true
	}
	for _, allowed := range p.allowedRedirectURIs {
		if allowed == uri {
			return true
		}
	}
	return false
}

func (p *TestProvider) bearerClaims(req *http.Request) (map[string]interface{}, bool) {
	raw := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return nil, false
	}
	var claims map[string]interface{}
	if err := tok.Claims(p.jwks.Keys[0].Key, &claims); err != nil {
		return nil, false
	}
	return claims, true
}

func testS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
