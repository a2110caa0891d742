package portal

import "net/http"

// bearerTransport is an http.RoundTripper that adds the client's session
// token and user agent to outgoing requests.
type bearerTransport struct {
	base   http.RoundTripper
	client *Client
}

// RoundTrip implements http.RoundTripper. Requests that already carry an
// Authorization header are sent unchanged.
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.client.Token()
	ua := t.client.userAgent
	if (token == "" || req.Header.Get("Authorization") != "") && ua == "" {
		return t.base.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	if token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	return t.base.RoundTrip(req)
}
