package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ipinfo-probe/collectors/network"
	"ipinfo-probe/core/internal/probe"
	"ipinfo-probe/core/internal/report"
)

// newInterfacesCmd shows how the LAN/tunnel policy classifies each interface,
// which explains why the probe picked (or skipped) an address.
func newInterfacesCmd(g *globalFlags, src probe.Sources) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List network interfaces and the role the probe assigns them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			list := src.Interfaces
			if list == nil {
				list = network.SystemInterfaces
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ifaces, err := list(ctx)
			if err != nil {
				return fmt.Errorf("list interfaces: %w", err)
			}

			b, err := report.Marshal(network.Inspect(ifaces, cfg.NetworkPolicy()), pretty)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	return cmd
}
