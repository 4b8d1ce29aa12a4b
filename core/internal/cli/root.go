package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ipinfo-probe/core/internal/config"
	"ipinfo-probe/core/internal/logging"
	"ipinfo-probe/core/internal/probe"
	"ipinfo-probe/core/internal/report"
	"ipinfo-probe/core/internal/version"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCmd builds the command tree. Running the root command with no
// subcommand takes one snapshot, which is what the status extension spawns.
func NewRootCmd() *cobra.Command {
	return newRootCmd(probe.Sources{})
}

func newRootCmd(src probe.Sources) *cobra.Command {
	g := &globalFlags{}
	var tunnel string
	var denyPrefixes []string
	var sshPorts []int
	var wanURL string
	var wanTimeout time.Duration
	var noWAN bool
	var timeout time.Duration
	var pretty bool
	var outputFile string

	cmd := &cobra.Command{
		Use:           "ipinfo-probe",
		Short:         "Report LAN/WAN addresses, VPN tunnel and SSH session state as JSON",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("tunnel") {
				cfg.Tunnel.Interface = tunnel
			}
			if flags.Changed("deny-prefix") {
				cfg.Interfaces.DenyPrefixes = denyPrefixes
			}
			if flags.Changed("ssh-port") {
				cfg.SSH.Ports = sshPorts
			}
			if flags.Changed("wan-url") {
				cfg.WAN.URL = wanURL
			}
			if flags.Changed("wan-timeout") {
				cfg.WAN.Timeout = wanTimeout
			}
			if noWAN {
				cfg.WAN.Enabled = false
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			runID := uuid.NewString()
			log := newLogger(cmd, cfg)
			log.Info().Str("run_id", runID).Str("version", version.Version).Msg("probe started")

			res, err := probe.Run(ctx, probe.Options{
				RunID:      runID,
				Collectors: probe.NewCollectors(cfg, src),
				Logger:     log,
			})
			if err != nil {
				return err
			}

			b, err := report.Marshal(res, pretty)
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if outputFile != "" {
				if err := report.WriteFileAtomic(outputFile, b, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outputFile, err)
				}
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}

	g.bind(cmd)

	cmd.Flags().StringVar(&tunnel, "tunnel", "", "VPN tunnel interface name (default from config: tun0)")
	cmd.Flags().StringSliceVar(&denyPrefixes, "deny-prefix", nil, "Interface name prefix excluded from LAN selection (repeatable, replaces config list)")
	cmd.Flags().IntSliceVar(&sshPorts, "ssh-port", nil, "SSH port to detect (repeatable, replaces config list)")
	cmd.Flags().StringVar(&wanURL, "wan-url", "", "Public IP echo service URL")
	cmd.Flags().DurationVar(&wanTimeout, "wan-timeout", 0, "Public IP lookup timeout")
	cmd.Flags().BoolVar(&noWAN, "no-wan", false, "Skip the public IP lookup")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Overall probe timeout")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "Also write the JSON document atomically to this file")

	cmd.AddCommand(newInterfacesCmd(g, src))
	cmd.AddCommand(NewVersionCmd())

	cmd.SetVersionTemplate(fmt.Sprintf("%s (%s/%s)\n", version.Version, runtime.GOOS, runtime.GOARCH))
	cmd.Version = version.Version

	return cmd
}

func (g *globalFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/ipinfo-probe/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: json|console")
}

func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
}
