// Package dialer establishes outbound connections, either directly or
// through a chain of SOCKS4, SOCKS4a and SOCKS5 proxies.
//
// A ChainDialer opens one TCP connection to the outermost proxy and then
// asks each hop, through the tunnel built so far, to CONNECT to the next hop
// and finally to the destination. The returned net.Conn carries destination
// traffic. Callers that want a direct connection use the direct dialer; there
// is no implicit interception of ordinary dials.
package dialer
