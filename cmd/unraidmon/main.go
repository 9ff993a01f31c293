package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nasmon/unraid/pkg/api"
	"github.com/nasmon/unraid/pkg/config"
	"github.com/nasmon/unraid/pkg/coordinator"
	"github.com/nasmon/unraid/pkg/log"
	"github.com/nasmon/unraid/pkg/metrics"
	"github.com/nasmon/unraid/pkg/state"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "unraidmon",
	Short: "Unraidmon - Unraid server monitor over the GraphQL API",
	Long: `Unraidmon connects to an Unraid server's GraphQL API, adapts to the
API version the server reports, and keeps a live snapshot of the array,
disks, shares, containers, virtual machines and UPS devices current
through polling and push subscriptions.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Unraidmon version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("host", "", "Unraid server host (overrides config)")
	rootCmd.PersistentFlags().String("api-key", "", "Unraid API key (overrides config)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dockerCmd)
	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(parityCmd)
}

// loadConfig merges the config file with the connection flags and
// initializes logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Host = host
	}
	if key, _ := cmd.Flags().GetString("api-key"); key != "" {
		cfg.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	return cfg, nil
}

// resolve connects to the server and picks the client variant for its
// reported API version.
func resolve(ctx context.Context, cfg config.Config) (api.Client, error) {
	client, err := api.Resolve(ctx, cfg.Host, cfg.APIKey,
		api.WithLogger(log.WithHost(cfg.Host)))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Host, err)
	}
	return client, nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the polling coordinator until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		interval, err := cfg.Interval()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		client, err := resolve(ctx, cfg)
		if err != nil {
			return err
		}

		logger := log.WithComponent("coordinator")
		opts := []coordinator.Option{
			coordinator.WithInterval(interval),
			coordinator.WithLogger(logger),
			coordinator.WithCollections(coordinator.Collections{
				Disks:  cfg.Collections.Disks,
				Shares: cfg.Collections.Shares,
				Docker: cfg.Collections.Docker,
				VMs:    cfg.Collections.VMs,
				UPS:    cfg.Collections.UPS,
			}),
		}

		if cfg.StatePath != "" {
			store, err := state.Open(cfg.StatePath)
			if err != nil {
				return err
			}
			defer store.Close()
			opts = append(opts, coordinator.WithStore(store))
		}

		coord := coordinator.New(client, opts...)

		for _, cat := range coordinator.Categories {
			cat := cat
			coord.OnDiscovery(cat, func(id string) {
				logger.Info().Str("category", string(cat)).Str("id", id).Msg("entity discovered")
			})
		}
		coord.OnContainerRemoved(func(id string) {
			logger.Info().Str("id", id).Msg("container removed")
		})

		if cfg.MetricsListen != "" {
			metrics.Register()
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
					metricsLogger := log.WithComponent("metrics")
					metricsLogger.Error().Err(err).Msg("metrics endpoint failed")
				}
			}()
		}

		if err := coord.Start(ctx); err != nil {
			return fmt.Errorf("initial refresh failed: %w", err)
		}

		logger.Info().
			Str("host", cfg.Host).
			Str("version", client.Version().String()).
			Dur("interval", interval).
			Msg("watching")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutting down")
		coord.Stop()
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print server identity and current metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		client, err := resolve(ctx, cfg)
		if err != nil {
			return err
		}

		info, err := client.ServerInfo(ctx)
		if err != nil {
			return err
		}
		m, err := client.MetricsArray(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Server:         %s\n", info.Name)
		fmt.Printf("Unraid version: %s\n", info.UnraidVersion)
		fmt.Printf("API version:    %s\n", client.Version())
		fmt.Printf("Local URL:      %s\n", info.LocalURL)
		fmt.Printf("Array state:    %s\n", m.State)
		if pct, ok := m.UsagePercent(); ok {
			fmt.Printf("Array usage:    %.1f%%\n", pct)
		}
		fmt.Printf("CPU usage:      %.1f%%\n", m.CPUPercentTotal)
		fmt.Printf("Memory usage:   %.1f%%\n", m.MemoryPercentTotal)
		if m.ParityCheckStatus != "" {
			fmt.Printf("Parity check:   %s\n", m.ParityCheckStatus)
		}

		if q, ok := client.(api.UPSQuerier); ok {
			devices, err := q.UPSDevices(ctx)
			if err == nil {
				for _, d := range devices {
					fmt.Printf("UPS %s:         %s, charge %d%%\n", d.Name, d.Status, d.BatteryCharge)
				}
			}
		}
		return nil
	},
}

// Docker commands
var dockerCmd = &cobra.Command{
	Use:   "docker",
	Short: "Manage Docker containers",
}

var dockerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := resolve(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		containers, err := client.DockerContainers(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range containers {
			fmt.Printf("%-40s %-12s %s\n", c.Name, c.State, c.Image)
		}
		return nil
	},
}

var dockerStartCmd = &cobra.Command{
	Use:   "start ID",
	Short: "Start a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := resolve(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		c, err := client.StartContainer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", c.Name, c.State)
		return nil
	},
}

var dockerStopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Stop a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := resolve(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		c, err := client.StopContainer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", c.Name, c.State)
		return nil
	},
}

func init() {
	dockerCmd.AddCommand(dockerListCmd)
	dockerCmd.AddCommand(dockerStartCmd)
	dockerCmd.AddCommand(dockerStopCmd)
}

// VM commands
var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage virtual machines",
}

var vmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List virtual machines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := resolve(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		vms, err := client.VirtualMachines(cmd.Context())
		if err != nil {
			return err
		}
		for _, vm := range vms {
			fmt.Printf("%-40s %s\n", vm.Name, vm.State)
		}
		return nil
	},
}

var vmStartCmd = &cobra.Command{
	Use:   "start ID",
	Short: "Start a virtual machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := resolve(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return client.StartVM(cmd.Context(), args[0])
	},
}

var vmStopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Stop a virtual machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		client, err := resolve(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		return client.StopVM(cmd.Context(), args[0])
	},
}

func init() {
	vmCmd.AddCommand(vmListCmd)
	vmCmd.AddCommand(vmStartCmd)
	vmCmd.AddCommand(vmStopCmd)
}

// Parity check commands
var parityCmd = &cobra.Command{
	Use:   "parity",
	Short: "Control parity checks",
}

func parityAction(name string, run func(api.Client, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("%s a parity check", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := resolve(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return run(client, cmd.Context())
		},
	}
}

func init() {
	parityCmd.AddCommand(parityAction("start", func(c api.Client, ctx context.Context) error {
		return c.StartParityCheck(ctx)
	}))
	parityCmd.AddCommand(parityAction("pause", func(c api.Client, ctx context.Context) error {
		return c.PauseParityCheck(ctx)
	}))
	parityCmd.AddCommand(parityAction("resume", func(c api.Client, ctx context.Context) error {
		return c.ResumeParityCheck(ctx)
	}))
	parityCmd.AddCommand(parityAction("cancel", func(c api.Client, ctx context.Context) error {
		return c.CancelParityCheck(ctx)
	}))
}
