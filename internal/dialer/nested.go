package dialer

import (
	"errors"

	"github.com/die-net/socksify/internal/socks"
)

// Nested describes a proxy whose target may itself be reached through
// another proxy: Proxy is asked to connect to Target's proxy, and so on. The
// innermost Nested has a nil Target.
type Nested struct {
	Proxy  socks.Proxy
	Target *Nested
}

// Via wraps target so that it is reached through p.
func Via(p socks.Proxy, target *Nested) *Nested {
	return &Nested{Proxy: p, Target: target}
}

// Flatten returns the hops outermost first. It does no I/O.
func (n *Nested) Flatten() (Chain, error) {
	seen := make(map[*Nested]bool)
	var chain Chain
	for cur := n; cur != nil; cur = cur.Target {
		if seen[cur] {
			return nil, errors.New("nested proxy description contains a cycle")
		}
		seen[cur] = true
		chain = append(chain, cur.Proxy)
	}
	if len(chain) == 0 {
		return nil, errors.New("empty proxy chain")
	}
	return chain, nil
}
