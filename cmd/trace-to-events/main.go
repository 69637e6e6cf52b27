// Command trace-to-events runs the per-digitiser trace processor: it
// consumes digitiser analog traces off the bus and publishes the detected
// events for the aggregator to fold into frames.
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

	"github.com/multiverse-hardware-labs/nexus-pipeline/bus"
	"github.com/multiverse-hardware-labs/nexus-pipeline/config"
	"github.com/multiverse-hardware-labs/nexus-pipeline/eventdata"
	"github.com/multiverse-hardware-labs/nexus-pipeline/grpcctl"
	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
	"github.com/multiverse-hardware-labs/nexus-pipeline/nexuswire"
	"github.com/multiverse-hardware-labs/nexus-pipeline/tracing"
)

func main() {
	var configFile string
	var controlAddr string

	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "trace-to-events",
		Short:         "Detect events in digitiser traces and publish them to the bus",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.DetectorConfig
			if err := config.Load(v, configFile, &cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, controlAddr)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML/TOML/JSON config file")
	rootCmd.PersistentFlags().StringVar(&controlAddr, "control-listen-addr", "127.0.0.1:7001", "gRPC health/control listen address")
	config.BindCommonFlags(rootCmd.PersistentFlags(), v, "digitiser-traces", "digitiser-events")
	rootCmd.PersistentFlags().String("polarity", "positive", "pulse polarity: positive or negative")
	rootCmd.PersistentFlags().Int("baseline.window", 0, "baseline subtraction window (0 disables)")
	rootCmd.PersistentFlags().String("discriminator.mode", "fixed", "discriminator mode: fixed, differential, advanced")
	rootCmd.PersistentFlags().Float64("discriminator.threshold", 1.0, "discriminator threshold")
	rootCmd.PersistentFlags().Int("discriminator.duration", 1, "minimum pulse duration in samples")
	rootCmd.PersistentFlags().Int("discriminator.cool_off_ticks", 0, "cool-off period in samples after an event")
	_ = v.BindPFlags(rootCmd.PersistentFlags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "trace-to-events: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.DetectorConfig, controlAddr string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "trace-to-events").Logger()

	tr, err := tracing.New(ctx, tracing.Options{OtlpEndpoint: cfg.Observability.OtlpEndpoint, ServiceName: "trace-to-events"})
	if err != nil {
		return fmt.Errorf("trace-to-events: starting tracer: %w", err)
	}
	defer func() { _ = tr.Shutdown(context.Background()) }()

	control := grpcctl.New(logger)
	lis, err := net.Listen("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("trace-to-events: control listener: %w", err)
	}
	go func() {
		if err := control.Serve(ctx, lis); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("control server exited")
		}
	}()

	client := bus.NewZmqClient(cfg.Bus.SubEndpoint, cfg.Bus.PubEndpoint, []string{cfg.Bus.InputTopic})
	if err := client.Subscribe(bus.Full); err != nil {
		return fmt.Errorf("trace-to-events: subscribing: %w", err)
	}
	defer client.Close()
	control.SetServing(grpcctl.ComponentBus, true)

	procCfg := processorConfig(cfg)

	for {
		msg, err := client.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("shutting down")
				return nil
			}
			logger.Warn().Err(err).Msg("recv error")
			continue
		}
		if messages.FlatbufferID(msg.Key) != messages.IDDigitiserAnalogTraceV2 {
			continue
		}
		trace, err := nexuswire.DecodeDigitiserTrace(msg.Payload)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping malformed digitiser trace")
			continue
		}

		_, span := tr.StartSpan(ctx, "process_trace")
		tracing.RecordFrameMetadata(span, trace.Metadata)
		evl := eventdata.ProcessTrace(trace, procCfg)
		span.End()

		payload := nexuswire.EncodeDigitiserEventList(evl)
		if err := client.Send(ctx, cfg.Bus.OutputTopic, payload, string(messages.IDDigitiserEventListV2), nil); err != nil {
			logger.Warn().Err(err).Msg("publish failed")
		}
	}
}

func processorConfig(cfg config.DetectorConfig) eventdata.ProcessorConfig {
	polarity := 1.0
	if cfg.Polarity == "negative" {
		polarity = -1.0
	}
	return eventdata.ProcessorConfig{
		Default: eventdata.ChannelConfig{
			Polarity:       polarity,
			BaselineWindow: cfg.Baseline.Window,
			NewDetector:    newDetectorFactory(cfg),
		},
	}
}

func newDetectorFactory(cfg config.DetectorConfig) func() eventdata.SampleDetector {
	d := cfg.Discriminator
	switch d.Mode {
	case "differential":
		return func() eventdata.SampleDetector {
			return eventdata.NewDifferentialThresholdDetector(d.Threshold, d.Duration, d.CoolOffTicks, nil)
		}
	case "advanced":
		return func() eventdata.SampleDetector {
			return eventdata.NewAdvancedMuonDetector(d.Threshold, d.Threshold/2, d.Threshold/4)
		}
	default:
		return func() eventdata.SampleDetector {
			return eventdata.NewFixedThresholdDetector(d.Threshold, d.Duration, d.CoolOffTicks)
		}
	}
}
