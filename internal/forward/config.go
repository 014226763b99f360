package forward

import (
	"log/slog"
	"time"

	"github.com/die-net/socksify/internal/dialer"
	"github.com/die-net/socksify/internal/socks"
)

type Config struct {
	// Destination every accepted connection is tunneled to.
	Destination socks.Destination

	// IOTimeout, when positive, is an absolute deadline for each relayed
	// connection.
	IOTimeout time.Duration

	Dialer dialer.Dialer
	Logger *slog.Logger
}
