// Package socks implements the client side of the SOCKS4, SOCKS4a and SOCKS5
// negotiation protocols.
//
// A Session drives a single hop: method negotiation and username/password
// authentication (SOCKS5 only), then a CONNECT or vendor RESOLVE request and
// reply parsing. The transport is any io.ReadWriter; the package never
// dials or closes connections itself.
//
// SOCKS5 request frames are written with the wire types from
// github.com/txthinking/socks5. Replies are parsed here and every unexpected
// byte maps to a typed *Error.
//
// SOCKS4 has no way to send a host name, so a SOCKS4 hop resolves names with
// the Client's Resolver and logs a warning that the lookup leaks outside the
// proxy. Use SOCKS4a to have the proxy resolve them.
package socks
