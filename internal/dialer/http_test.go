package dialer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/die-net/socksify/internal/testutil"
)

func TestHTTPClientThroughChain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello via "+r.URL.Path)
	}))
	defer ts.Close()

	outer := testutil.StartSOCKSServer(t, ctx, testutil.SOCKSServerConfig{})
	inner := testutil.StartSOCKSServer(t, ctx, testutil.SOCKSServerConfig{})

	d, err := New(Config{}, "socks5://"+outer.Addr().String(), "socks4a://"+inner.Addr().String())
	require.NoError(t, err)

	client := NewHTTPClient(d)
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/chain", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello via /chain", string(body))

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	require.Len(t, inner.Requests(), 1)
	assert.Equal(t, u.Host, inner.Requests()[0].Address)
}

func TestHTTPTransportIgnoresEnvironmentProxy(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://127.0.0.1:1")

	tr := NewHTTPTransport(NewDirectDialer(Config{}))
	assert.Nil(t, tr.Proxy)
	assert.NotNil(t, tr.DialContext)
}
