package resolver

import "net"

// Valid rejects loopback, the container-bridge block, link-local, the
// podman-default sub-slice, and any malformed IPv4 literal. Hostnames that
// are not IP literals (a
// resolver method may hand one back verbatim) are also rejected — only a
// validated address is ever cached or used to dial.
func Valid(address string) bool {
	ip := net.ParseIP(address)
	if ip == nil {
		return false
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}

	if ip4[0] == 127 {
		return false
	}
	if ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31 {
		return false
	}
	if ip4[0] == 169 && ip4[1] == 254 {
		return false
	}
	if ip4[0] == 10 && ip4[1] == 0 {
		return false
	}
	return true
}
