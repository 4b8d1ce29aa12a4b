package network

import (
	"context"
	"fmt"

	gnet "github.com/shirou/gopsutil/v4/net"

	"ipinfo-probe/collectors"
)

type TunnelCollector struct {
	name   string
	source InterfaceSource
}

func NewTunnelCollector(name string, src InterfaceSource) *TunnelCollector {
	if name == "" {
		name = DefaultTunnelName
	}
	if src == nil {
		src = SystemInterfaces
	}
	return &TunnelCollector{name: name, source: src}
}

func (c *TunnelCollector) Name() string { return "tunnel" }

func (c *TunnelCollector) Collect(ctx context.Context, rc collectors.RunContext) (collectors.Findings, error) {
	ifaces, err := c.source(ctx)
	if err != nil {
		return collectors.Findings{}, fmt.Errorf("list interfaces: %w", err)
	}

	t := findTunnel(ifaces, c.name)
	if t == nil {
		rc.Log.Debug().Str("interface", c.name).Msg("no tunnel address")
	}
	return collectors.Findings{Tunnel: t}, nil
}

// findTunnel matches the interface name exactly. A tunnel without an IPv4
// address is treated as absent.
func findTunnel(ifaces gnet.InterfaceStatList, name string) *collectors.InterfaceAddress {
	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}
		ip, ok := firstIPv4(iface.Addrs)
		if !ok {
			return nil
		}
		return &collectors.InterfaceAddress{Address: ip.String(), Interface: iface.Name, MAC: iface.HardwareAddr}
	}
	return nil
}
