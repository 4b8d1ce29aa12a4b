package network

import (
	"context"
	"sync"

	gnet "github.com/shirou/gopsutil/v4/net"
)

// InterfaceSource lists the host's interfaces with their assigned addresses.
// The order of the returned list is whatever the OS reports and differs
// between platforms.
type InterfaceSource func(ctx context.Context) (gnet.InterfaceStatList, error)

func SystemInterfaces(ctx context.Context) (gnet.InterfaceStatList, error) {
	return gnet.InterfacesWithContext(ctx)
}

// CachedInterfaces calls src at most once and replays its result, error
// included, to every later caller. The list is fixed for the lifetime of the
// returned source.
func CachedInterfaces(src InterfaceSource) InterfaceSource {
	var (
		once   sync.Once
		ifaces gnet.InterfaceStatList
		err    error
	)
	return func(ctx context.Context) (gnet.InterfaceStatList, error) {
		once.Do(func() { ifaces, err = src(ctx) })
		return ifaces, err
	}
}
