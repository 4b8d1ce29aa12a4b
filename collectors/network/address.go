package network

import (
	"net/netip"
	"strings"

	gnet "github.com/shirou/gopsutil/v4/net"
)

// parseAddr accepts both CIDR ("192.168.1.50/24") and bare forms. An
// IPv4-mapped IPv6 address stays IPv6; it is configured as an IPv6 address
// and is never reported as the host's IPv4.
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone(""), true
}

func firstIPv4(addrs gnet.InterfaceAddrList) (netip.Addr, bool) {
	for _, a := range addrs {
		ip, ok := parseAddr(a.Addr)
		if ok && ip.Is4() {
			return ip, true
		}
	}
	return netip.Addr{}, false
}

// firstIPv6 skips link-local (fe80::/10) addresses.
func firstIPv6(addrs gnet.InterfaceAddrList) (netip.Addr, bool) {
	for _, a := range addrs {
		ip, ok := parseAddr(a.Addr)
		if !ok || !ip.Is6() {
			continue
		}
		if ip.IsLinkLocalUnicast() {
			continue
		}
		return ip, true
	}
	return netip.Addr{}, false
}
