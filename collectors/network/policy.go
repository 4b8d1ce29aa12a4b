package network

import (
	"strings"

	gnet "github.com/shirou/gopsutil/v4/net"
)

// DefaultDenyPrefixes covers loopback, container bridges and veth pairs.
var DefaultDenyPrefixes = []string{"lo", "docker", "br-", "veth", "virbr", "podman", "cni", "flannel"}

const DefaultTunnelName = "tun0"

type Policy struct {
	DenyPrefixes []string
	TunnelName   string
}

func DefaultPolicy() Policy {
	return Policy{
		DenyPrefixes: append([]string(nil), DefaultDenyPrefixes...),
		TunnelName:   DefaultTunnelName,
	}
}

type Role string

const (
	RoleLAN     Role = "lan"
	RoleTunnel  Role = "tunnel"
	RoleSkipped Role = "skipped"
)

// classify decides what an interface can contribute based on its name alone.
// The tunnel check runs first so a deny-list entry cannot hide the tunnel.
func (p Policy) classify(name string) (Role, string) {
	if p.TunnelName != "" && name == p.TunnelName {
		return RoleTunnel, "tunnel interface"
	}
	for _, prefix := range p.DenyPrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			return RoleSkipped, "deny prefix " + prefix
		}
	}
	return RoleLAN, ""
}

type InterfaceReport struct {
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	Flags     []string `json:"flags"`
	Addresses []string `json:"addresses"`
	Role      Role     `json:"role"`
	Reason    string   `json:"reason,omitempty"`
}

// Inspect reports the role every interface plays under p, in enumeration order.
func Inspect(ifaces gnet.InterfaceStatList, p Policy) []InterfaceReport {
	out := make([]InterfaceReport, 0, len(ifaces))
	for _, iface := range ifaces {
		role, reason := p.classify(iface.Name)
		addrs := make([]string, 0, len(iface.Addrs))
		for _, a := range iface.Addrs {
			addrs = append(addrs, a.Addr)
		}
		if role == RoleLAN && len(addrs) == 0 {
			reason = "no addresses"
		}
		flags := iface.Flags
		if flags == nil {
			flags = []string{}
		}
		out = append(out, InterfaceReport{
			Name:      iface.Name,
			MAC:       iface.HardwareAddr,
			Flags:     flags,
			Addresses: addrs,
			Role:      role,
			Reason:    reason,
		})
	}
	return out
}
