package collectors

import (
	"context"

	"github.com/rs/zerolog"
)

// InterfaceAddress is one resolved address on one interface.
type InterfaceAddress struct {
	Address   string `json:"address"`
	Interface string `json:"interface"`
	MAC       string `json:"mac"`
}

// Findings is the partial record a single collector contributes.
// A collector only sets the fields it owns; the rest stay zero.
type Findings struct {
	LANIPv4     *InterfaceAddress
	LANIPv6     *InterfaceAddress
	Tunnel      *InterfaceAddress
	WANIPv4     string
	IncomingSSH bool
	OutgoingSSH bool
}

type RunContext struct {
	RunID string
	Log   zerolog.Logger
}

type Collector interface {
	Name() string
	Collect(ctx context.Context, rc RunContext) (Findings, error)
}
