package socks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: "socks5", want: SOCKS5},
		{in: "SOCKS5h", want: SOCKS5},
		{in: "socks", want: SOCKS5},
		{in: "5", want: SOCKS5},
		{in: "socks4", want: SOCKS4},
		{in: "4", want: SOCKS4},
		{in: "socks4a", want: SOCKS4a},
		{in: "4a", want: SOCKS4a},
		{in: "socks6", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionText(t *testing.T) {
	t.Parallel()

	var v Version
	require.NoError(t, v.UnmarshalText([]byte("socks4a")))
	assert.Equal(t, SOCKS4a, v)

	b, err := SOCKS5.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "socks5", string(b))

	b, err = SOCKS4a.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "socks4a", string(b))

	assert.Equal(t, "socks(7)", Version(7).String())
}

func TestVersionJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{in: `"socks5"`, want: SOCKS5},
		{in: `"socks4a"`, want: SOCKS4a},
		{in: `5`, want: SOCKS5},
		{in: `4`, want: SOCKS4},
		{in: `6`, wantErr: true},
		{in: `4.5`, wantErr: true},
		{in: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var p Proxy
			err := json.Unmarshal([]byte(`{"host":"h","port":1080,"version":`+tt.in+`}`), &p)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Version)
		})
	}
}

func TestWireVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, byte(4), SOCKS4.wireVersion())
	assert.Equal(t, byte(4), SOCKS4a.wireVersion())
	assert.Equal(t, byte(5), SOCKS5.wireVersion())
}

func TestProxyString(t *testing.T) {
	t.Parallel()

	p := Proxy{Host: "::1", Port: 1080, Version: SOCKS5, User: "u", Password: "secret"}
	assert.Equal(t, "socks5://u@[::1]:1080", p.String())
	assert.Equal(t, "[::1]:1080", p.Addr())
	assert.True(t, p.HasAuth())
	assert.False(t, Proxy{Host: "h", Port: 1, Version: SOCKS4}.HasAuth())
	assert.Equal(t, "socks4a://b:9050", Proxy{Host: "b", Port: 9050, Version: SOCKS4a}.String())
}

func TestParseDestination(t *testing.T) {
	t.Parallel()

	d, err := ParseDestination("example.com:443")
	require.NoError(t, err)
	assert.Equal(t, Destination{Host: "example.com", Port: 443}, d)
	assert.Equal(t, "example.com:443", d.String())

	for _, bad := range []string{"example.com", "example.com:https", "example.com:70000"} {
		_, err := ParseDestination(bad)
		assert.Error(t, err, bad)
	}
}
