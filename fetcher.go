package offlinecache

import (
	"net/http"
	"net/url"
)

// Fetcher performs a network fetch for a request.
// It is the agent's only way to reach the network, so swapping it out makes
// offline conditions trivial to simulate.
type Fetcher interface {
	Do(r *http.Request) (*http.Response, error)
}

// NetworkFetcher fetches over HTTP. Relative and same-origin requests are
// resolved against the configured origin URL; absolute requests to other
// hosts are sent as-is.
type NetworkFetcher struct {
	origin url.URL
	client *http.Client
}

func NewNetworkFetcher(origin url.URL) *NetworkFetcher {
	return &NetworkFetcher{
		origin: origin,
		client: &http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *NetworkFetcher) Do(r *http.Request) (*http.Response, error) {
	target := f.origin.ResolveReference(r.URL)
	// need to specifically set body to nil on the outgoing request if content is zero length
	// see https://github.com/golang/go/issues/16036
	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	// do not forward the connection header, this causes trouble upstream
	req.Header.Del("Connection")
	return f.client.Do(req)
}
