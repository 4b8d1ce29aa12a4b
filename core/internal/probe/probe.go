package probe

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"ipinfo-probe/collectors"
	"ipinfo-probe/collectors/network"
	"ipinfo-probe/collectors/sessions"
	"ipinfo-probe/collectors/wan"
	"ipinfo-probe/core/internal/config"
)

type Options struct {
	RunID      string
	Collectors []collectors.Collector
	Logger     zerolog.Logger
}

// Result is the document the status extension renders. Field order and names
// are part of the output contract.
type Result struct {
	Tunnel         *collectors.InterfaceAddress `json:"tun0_vpn"`
	LANIPv4        *collectors.InterfaceAddress `json:"lan_ip4"`
	LANIPv6        *collectors.InterfaceAddress `json:"lan_ip6"`
	WANIPv4        string                       `json:"wan_ip4"`
	VPNDetected    bool                         `json:"detect_vpn"`
	HasRemoteSSH   bool                         `json:"has_remote_ssh"`
	HasIncomingSSH bool                         `json:"has_incoming_ssh"`
}

// Sources lets callers replace the OS-backed data sources.
type Sources struct {
	Interfaces  network.InterfaceSource
	Connections sessions.ConnectionSource
}

// NewCollectors returns the collectors in the order they run: LAN, tunnel,
// WAN, SSH.
// The LAN and tunnel collectors share one interface listing.
func NewCollectors(cfg *config.Config, src Sources) []collectors.Collector {
	ifaces := src.Interfaces
	if ifaces == nil {
		ifaces = network.SystemInterfaces
	}
	ifaces = network.CachedInterfaces(ifaces)
	cols := []collectors.Collector{
		network.NewLANCollector(cfg.NetworkPolicy(), ifaces),
		network.NewTunnelCollector(cfg.Tunnel.Interface, ifaces),
	}
	if cfg.WAN.Enabled {
		cols = append(cols, wan.NewCollector(wan.NewResolver(cfg.WAN.URL, cfg.WAN.Timeout)))
	}
	return append(cols, sessions.NewSSHCollector(cfg.SSHPorts(), src.Connections))
}

// Run executes every collector once. A collector error only empties that
// collector's fields; a cancelled context or a panic fails the whole run.
// An expired deadline is not fatal: the collector it interrupted fails on
// its own and the rest run detached from the deadline, so results already
// gathered are kept.
func Run(ctx context.Context, opts Options) (res Result, err error) {
	log := opts.Logger.With().Str("run_id", opts.RunID).Logger()
	rc := collectors.RunContext{RunID: opts.RunID, Log: log}

	var current string
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("collector", current).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("collector panicked")
			res, err = Result{}, fmt.Errorf("collector %s: panic: %v", current, r)
		}
	}()

	var merged collectors.Findings
	for _, c := range opts.Collectors {
		if err := ctx.Err(); err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				return Result{}, err
			}
			log.Warn().Err(err).Str("next", c.Name()).Msg("run deadline passed; finishing remaining collectors")
			ctx = context.WithoutCancel(ctx)
		}

		current = c.Name()
		started := time.Now()
		f, cerr := c.Collect(ctx, rc)
		if cerr != nil {
			log.Warn().Err(cerr).Str("collector", c.Name()).Dur("elapsed", time.Since(started)).Msg("collector failed; field left empty")
			continue
		}
		log.Debug().Str("collector", c.Name()).Dur("elapsed", time.Since(started)).Msg("collector finished")
		merge(&merged, f)
	}

	return assemble(merged), nil
}

func merge(dst *collectors.Findings, src collectors.Findings) {
	if src.LANIPv4 != nil && dst.LANIPv4 == nil {
		dst.LANIPv4 = src.LANIPv4
	}
	if src.LANIPv6 != nil && dst.LANIPv6 == nil {
		dst.LANIPv6 = src.LANIPv6
	}
	if src.Tunnel != nil && dst.Tunnel == nil {
		dst.Tunnel = src.Tunnel
	}
	if src.WANIPv4 != "" && dst.WANIPv4 == "" {
		dst.WANIPv4 = src.WANIPv4
	}
	dst.IncomingSSH = dst.IncomingSSH || src.IncomingSSH
	dst.OutgoingSSH = dst.OutgoingSSH || src.OutgoingSSH
}

func assemble(f collectors.Findings) Result {
	return Result{
		Tunnel:         f.Tunnel,
		LANIPv4:        f.LANIPv4,
		LANIPv6:        f.LANIPv6,
		WANIPv4:        f.WANIPv4,
		VPNDetected:    f.Tunnel != nil && f.Tunnel.Address != "",
		HasRemoteSSH:   f.OutgoingSSH,
		HasIncomingSSH: f.IncomingSSH,
	}
}
