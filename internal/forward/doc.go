// Package forward exposes a tunnel as a local TCP port.
//
// Every connection accepted on the listener is tunneled to one fixed
// destination through a dialer.Dialer, usually a SOCKS chain, and bytes are
// copied in both directions until either side closes.
package forward
