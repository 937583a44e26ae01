package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// defaultRealm/defaultService are the Docker Hub token-issuer coordinates
// used when a request has never yet received a Www-Authenticate challenge
// to parse them from.
const (
	defaultRealm   = "https://auth.docker.io/token"
	defaultService = "registry.docker.io"
)

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// bearerAuth is an http.RoundTripper that attaches a bearer token to every
// registry request, fetching or refreshing it from the realm/service pair
// carried by the most recent Www-Authenticate challenge and a pull scope
// derived from the request path. Tokens are
// memoized by scope for the client's lifetime and transparently refreshed
// both on expiry and on an unexpected 401, so a long-lived client never
// has to restart to pick up a fresh token.
type bearerAuth struct {
	base http.RoundTripper

	mu     sync.Mutex
	byScope map[string]cachedToken
	realm   string
	service string
}

// newBearerAuth wraps base (or http.DefaultTransport if nil) with
// Docker-Registry bearer-token authentication.
func newBearerAuth(base http.RoundTripper) *bearerAuth {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerAuth{
		base:    base,
		byScope: make(map[string]cachedToken),
		realm:   defaultRealm,
		service: defaultService,
	}
}

func (b *bearerAuth) RoundTrip(req *http.Request) (*http.Response, error) {
	scope := scopeFor(req)

	if token, ok := b.tokenFor(scope); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := b.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}
	res.Body.Close()

	// The server wants a different token than the one we presented (or we
	// presented none). Parse its challenge and retry exactly once.
	b.parseChallenge(res.Header.Get("Www-Authenticate"))
	token, err := b.fetchToken(req.Context(), scope)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	retry.Header.Set("Authorization", "Bearer "+token)
	return b.base.RoundTrip(retry)
}

func (b *bearerAuth) tokenFor(scope string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cached, ok := b.byScope[scope]
	if !ok || time.Now().After(cached.expiresAt) {
		return "", false
	}
	return cached.token, true
}

func (b *bearerAuth) fetchToken(ctx context.Context, scope string) (string, error) {
	b.mu.Lock()
	realm, service := b.realm, b.service
	b.mu.Unlock()

	url := fmt.Sprintf("%s?service=%s&scope=%s", realm, service, scope)
	client := newHTTPClient(http.DefaultTransport)
	var tr tokenResponse
	if err := client.getJSON(ctx, url, "application/json", apperr.CodeRegAuthFailed, &tr); err != nil {
		return "", apperr.Wrap(apperr.CodeRegAuthFailed, err, "failed fetching bearer token")
	}
	if tr.Token == "" {
		return "", apperr.New(apperr.CodeRegAuthFailed, "registry returned an empty bearer token")
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 60
	}

	b.mu.Lock()
	b.byScope[scope] = cachedToken{token: tr.Token, expiresAt: time.Now().Add(time.Duration(expiresIn) * time.Second)}
	b.mu.Unlock()

	return tr.Token, nil
}

// parseChallenge extracts realm and service from a
// `Bearer realm="...",service="...",scope="..."` Www-Authenticate header;
// a field it cannot find keeps its previous value (initially the Docker Hub
// defaults). The challenge's scope is not used: scopeFor derives it.
func (b *bearerAuth) parseChallenge(header string) {
	if header == "" {
		return
	}
	header = strings.TrimPrefix(header, "Bearer ")

	fields := splitChallengeFields(header)
	b.mu.Lock()
	defer b.mu.Unlock()
	if realm, ok := fields["realm"]; ok {
		b.realm = realm
	}
	if service, ok := fields["service"]; ok {
		b.service = service
	}
}

func splitChallengeFields(header string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		fields[kv[0]] = strings.Trim(kv[1], `"`)
	}
	return fields
}

// scopeFor derives the repository pull scope string from a registry API
// request's path: /v2/<repository>/(manifests|blobs)/<ref>.
func scopeFor(req *http.Request) string {
	path := req.URL.Path
	path = strings.TrimPrefix(path, "/v2/")
	for _, marker := range []string{"/manifests/", "/blobs/"} {
		if idx := strings.Index(path, marker); idx >= 0 {
			path = path[:idx]
			break
		}
	}
	return fmt.Sprintf("repository:%s:pull", path)
}
