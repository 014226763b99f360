package dialer

import (
	"net/http"
)

// NewHTTPTransport returns a clone of http.DefaultTransport whose
// connections are made by d. Environment proxy settings are ignored; d
// decides the route.
func NewHTTPTransport(d Dialer) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	tr.DialContext = d.DialContext
	return tr
}

// NewHTTPClient returns an *http.Client using NewHTTPTransport(d).
func NewHTTPClient(d Dialer) *http.Client {
	return &http.Client{Transport: NewHTTPTransport(d)}
}
