package dialer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/die-net/socksify/internal/socks"
)

// chainFile is the on-disk form of a Chain:
//
//	{"chain": [{"host": "10.0.0.1", "port": 1080, "version": "socks5",
//	            "user": "u", "password": "p"}, ...]}
//
// version may also be a bare number, 4 or 5.
type chainFile struct {
	Chain []socks.Proxy `json:"chain" validate:"required,min=1,dive"`
}

// LoadChainFile reads and validates a JSON chain description.
func LoadChainFile(path string) (Chain, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chain file: %w", err)
	}

	var f chainFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("chain file %s: %w", path, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("chain file %s: %w", path, validationError(err))
	}

	chain := Chain(f.Chain)
	if err := chain.Validate(); err != nil {
		return nil, fmt.Errorf("chain file %s: %w", path, err)
	}
	return chain, nil
}
