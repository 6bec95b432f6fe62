package geo

import (
	"net/netip"
	"strings"
)

// AggregateIP hides the host part of an address before it is echoed back or
// stored: IPv4 is reported as its /24, IPv6 as its /48.
func AggregateIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return Unknown
	}

	addr = addr.Unmap().WithZone("")

	bits := 48
	if addr.Is4() {
		bits = 24
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return Unknown
	}

	return prefix.String()
}
