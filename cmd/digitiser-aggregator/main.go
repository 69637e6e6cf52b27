// Command digitiser-aggregator runs the Digitiser Aggregator component:
// fold per-digitiser event lists into complete frames and republish them
// for the NeXus writer.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/multiverse-hardware-labs/nexus-pipeline/aggregator"
	"github.com/multiverse-hardware-labs/nexus-pipeline/bus"
	"github.com/multiverse-hardware-labs/nexus-pipeline/config"
	"github.com/multiverse-hardware-labs/nexus-pipeline/grpcctl"
	"github.com/multiverse-hardware-labs/nexus-pipeline/tracing"
)

func main() {
	var configFile, controlAddr string

	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "digitiser-aggregator",
		Short:         "Fold per-digitiser event lists into complete frames",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.AggregatorConfig
			if err := config.Load(v, configFile, &cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, controlAddr)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML/TOML/JSON config file")
	rootCmd.PersistentFlags().StringVar(&controlAddr, "control-listen-addr", "127.0.0.1:7002", "gRPC health/control listen address")
	config.BindCommonFlags(rootCmd.PersistentFlags(), v, "digitiser-events", "frames")
	rootCmd.PersistentFlags().UintSlice("expected_digitisers", nil, "expected digitiser IDs that must all report in before a frame is complete")
	rootCmd.PersistentFlags().Int64("frame_ttl_ms", 5000, "milliseconds an incomplete frame is held before expiry")
	rootCmd.PersistentFlags().Int64("cache_poll_ms", 100, "milliseconds between expiry sweeps")
	rootCmd.PersistentFlags().Int("send_frame_buffer_size", 64, "bounded outbound frame channel capacity")
	_ = v.BindPFlags(rootCmd.PersistentFlags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "digitiser-aggregator: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AggregatorConfig, controlAddr string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "digitiser-aggregator").Logger()

	tr, err := tracing.New(ctx, tracing.Options{OtlpEndpoint: cfg.Observability.OtlpEndpoint, ServiceName: "digitiser-aggregator"})
	if err != nil {
		return fmt.Errorf("digitiser-aggregator: starting tracer: %w", err)
	}
	defer func() { _ = tr.Shutdown(context.Background()) }()

	control := grpcctl.New(logger)
	lis, err := net.Listen("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("digitiser-aggregator: control listener: %w", err)
	}
	go func() {
		if err := control.Serve(ctx, lis); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("control server exited")
		}
	}()

	expected := make([]uint8, 0, len(cfg.ExpectedDigitisers))
	expected = append(expected, cfg.ExpectedDigitisers...)

	client := bus.NewZmqClient(cfg.Bus.SubEndpoint, cfg.Bus.PubEndpoint, []string{cfg.Bus.InputTopic})
	defer client.Close()
	control.SetServing(grpcctl.ComponentBus, true)

	rt := aggregator.New(aggregator.Config{
		FrameTTL:           cfg.FrameTTL(),
		ExpectedDigitisers: expected,
		SendFrameBufSize:   cfg.SendFrameBufSize,
		ExpiryPollInterval: cfg.CachePollInterval(),
		InputTopic:         cfg.Bus.InputTopic,
		OutputTopic:        cfg.Bus.OutputTopic,
	}, client, logger)

	control.SetServing(grpcctl.ComponentCache, true)
	if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("digitiser-aggregator: %w", err)
	}
	logger.Info().Msg("shut down")
	return nil
}
