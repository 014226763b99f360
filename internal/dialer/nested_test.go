package dialer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/die-net/socksify/internal/socks"
)

func TestNestedFlatten(t *testing.T) {
	t.Parallel()

	a := socks.Proxy{Host: "a", Port: 1080, Version: socks.SOCKS5}
	b := socks.Proxy{Host: "b", Port: 1080, Version: socks.SOCKS4a}
	c := socks.Proxy{Host: "c", Port: 1080, Version: socks.SOCKS5}

	chain, err := Via(a, Via(b, Via(c, nil))).Flatten()
	require.NoError(t, err)
	assert.Equal(t, Chain{a, b, c}, chain)

	chain, err = Via(a, nil).Flatten()
	require.NoError(t, err)
	assert.Equal(t, Chain{a}, chain)
}

func TestNestedFlattenErrors(t *testing.T) {
	t.Parallel()

	var empty *Nested
	_, err := empty.Flatten()
	require.Error(t, err)

	loop := Via(socks.Proxy{Host: "a", Port: 1080, Version: socks.SOCKS5}, nil)
	loop.Target = Via(socks.Proxy{Host: "b", Port: 1080, Version: socks.SOCKS5}, loop)
	_, err = loop.Flatten()
	require.ErrorContains(t, err, "cycle")
}
