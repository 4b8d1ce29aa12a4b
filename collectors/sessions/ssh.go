package sessions

import (
	"context"
	"fmt"
	"strings"

	gnet "github.com/shirou/gopsutil/v4/net"

	"ipinfo-probe/collectors"
)

// DefaultSSHPorts is the standard port plus the common unprivileged alternate.
var DefaultSSHPorts = []uint32{22, 8022}

const statusEstablished = "ESTABLISHED"

// ConnectionSource lists sockets of the given gopsutil kind ("inet", "tcp", ...).
type ConnectionSource func(ctx context.Context, kind string) ([]gnet.ConnectionStat, error)

func SystemConnections(ctx context.Context, kind string) ([]gnet.ConnectionStat, error) {
	return gnet.ConnectionsWithContext(ctx, kind)
}

type SSHCollector struct {
	ports  map[uint32]struct{}
	source ConnectionSource
}

func NewSSHCollector(ports []uint32, src ConnectionSource) *SSHCollector {
	if len(ports) == 0 {
		ports = DefaultSSHPorts
	}
	if src == nil {
		src = SystemConnections
	}
	set := make(map[uint32]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return &SSHCollector{ports: set, source: src}
}

func (c *SSHCollector) Name() string { return "ssh" }

func (c *SSHCollector) Collect(ctx context.Context, rc collectors.RunContext) (collectors.Findings, error) {
	conns, err := c.source(ctx, "inet")
	if err != nil {
		return collectors.Findings{}, fmt.Errorf("list connections: %w", err)
	}

	incoming, outgoing := c.classify(conns)
	rc.Log.Debug().
		Int("connections", len(conns)).
		Bool("incoming", incoming).
		Bool("outgoing", outgoing).
		Msg("ssh sessions classified")
	return collectors.Findings{IncomingSSH: incoming, OutgoingSSH: outgoing}, nil
}

func (c *SSHCollector) classify(conns []gnet.ConnectionStat) (incoming, outgoing bool) {
	for _, conn := range conns {
		if !strings.EqualFold(conn.Status, statusEstablished) {
			continue
		}
		if !bound(conn.Laddr) || !bound(conn.Raddr) {
			continue
		}
		if _, ok := c.ports[conn.Laddr.Port]; ok {
			incoming = true
		}
		if _, ok := c.ports[conn.Raddr.Port]; ok {
			outgoing = true
		}
		if incoming && outgoing {
			break
		}
	}
	return incoming, outgoing
}

func bound(a gnet.Addr) bool {
	return a.IP != "" && a.Port != 0
}
