package ports

import "net/http"

// HTTPClient sends requests to the repository API. *http.Client satisfies it;
// tests substitute a client bound to an httptest server or a stub transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
