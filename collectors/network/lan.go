package network

import (
	"context"
	"fmt"

	gnet "github.com/shirou/gopsutil/v4/net"

	"ipinfo-probe/collectors"
)

type LANCollector struct {
	policy Policy
	source InterfaceSource
}

func NewLANCollector(p Policy, src InterfaceSource) *LANCollector {
	if src == nil {
		src = SystemInterfaces
	}
	return &LANCollector{policy: p, source: src}
}

func (c *LANCollector) Name() string { return "lan" }

func (c *LANCollector) Collect(ctx context.Context, rc collectors.RunContext) (collectors.Findings, error) {
	ifaces, err := c.source(ctx)
	if err != nil {
		return collectors.Findings{}, fmt.Errorf("list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if role, reason := c.policy.classify(iface.Name); role != RoleLAN {
			rc.Log.Debug().Str("interface", iface.Name).Str("reason", reason).Msg("interface excluded from LAN selection")
		}
	}

	v4, v6 := selectLAN(ifaces, c.policy)
	return collectors.Findings{LANIPv4: v4, LANIPv6: v6}, nil
}

// selectLAN keeps the first qualifying IPv4 and the first qualifying IPv6
// independently; the winning interface may differ per family.
func selectLAN(ifaces gnet.InterfaceStatList, p Policy) (v4, v6 *collectors.InterfaceAddress) {
	for _, iface := range ifaces {
		if role, _ := p.classify(iface.Name); role != RoleLAN {
			continue
		}
		if v4 == nil {
			if ip, ok := firstIPv4(iface.Addrs); ok {
				v4 = &collectors.InterfaceAddress{Address: ip.String(), Interface: iface.Name, MAC: iface.HardwareAddr}
			}
		}
		if v6 == nil {
			if ip, ok := firstIPv6(iface.Addrs); ok {
				v6 = &collectors.InterfaceAddress{Address: ip.String(), Interface: iface.Name, MAC: iface.HardwareAddr}
			}
		}
		if v4 != nil && v6 != nil {
			break
		}
	}
	return v4, v6
}
