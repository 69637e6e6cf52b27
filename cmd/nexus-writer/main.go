// Command nexus-writer runs the NeXus Writer component: it consumes
// run-control, frame, log, sample-environment, and alarm
// messages off the bus and maintains one HDF5/NeXus file per open run,
// periodically flushing completed runs out to the local completed
// directory and, if configured, on to a final archive.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/multiverse-hardware-labs/nexus-pipeline/archiveflusher"
	"github.com/multiverse-hardware-labs/nexus-pipeline/bus"
	"github.com/multiverse-hardware-labs/nexus-pipeline/config"
	"github.com/multiverse-hardware-labs/nexus-pipeline/engine"
	"github.com/multiverse-hardware-labs/nexus-pipeline/grpcctl"
	"github.com/multiverse-hardware-labs/nexus-pipeline/messages"
	"github.com/multiverse-hardware-labs/nexus-pipeline/nexuswire"
	"github.com/multiverse-hardware-labs/nexus-pipeline/tracing"
)

func main() {
	var configFile string

	v := viper.New()
	rootCmd := &cobra.Command{
		Use:           "nexus-writer",
		Short:         "Write bus traffic for an open run into a NeXus file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.NexusConfig
			if err := config.Load(v, configFile, &cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML/TOML/JSON config file")
	config.BindCommonFlags(rootCmd.PersistentFlags(), v, "frames", "")
	rootCmd.PersistentFlags().String("local_temp_dir", "/var/lib/nexus-writer/tmp", "directory holding open runs' .nxs files")
	rootCmd.PersistentFlags().String("local_completed_dir", "/var/lib/nexus-writer/completed", "directory holding finished runs awaiting archival")
	rootCmd.PersistentFlags().String("archive_path", "", "final archive directory; empty disables archiving")
	rootCmd.PersistentFlags().Int64("chunk_size_ms", 1000, "HDF5 chunk size in milliseconds of frame data; read into the config but not used: every dataset is chunked at a fixed 1024 elements")
	rootCmd.PersistentFlags().Int64("cache_poll_ms", 1000, "milliseconds between run-cache sweeps")
	rootCmd.PersistentFlags().Int64("run_ttl_ms", 5000, "milliseconds a stopped run is held before being flushed")
	rootCmd.PersistentFlags().String("instrument_name", "", "instrument name recorded in every new NeXus file")
	rootCmd.PersistentFlags().String("program_name", "nexus-writer", "program name recorded in every new NeXus file")
	rootCmd.PersistentFlags().String("program_version", "dev", "program version recorded in every new NeXus file")
	rootCmd.PersistentFlags().String("configuration", "", "free-form configuration string recorded in every new NeXus file")
	rootCmd.PersistentFlags().String("control_listen_addr", "127.0.0.1:7003", "gRPC health/control listen address")
	_ = v.BindPFlags(rootCmd.PersistentFlags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nexus-writer: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.NexusConfig) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "nexus-writer").Logger()

	for _, dir := range []string{cfg.LocalTempDir, cfg.LocalCompletedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("nexus-writer: preparing %s: %w", dir, err)
		}
	}

	tr, err := tracing.New(ctx, tracing.Options{OtlpEndpoint: cfg.Observability.OtlpEndpoint, ServiceName: "nexus-writer"})
	if err != nil {
		return fmt.Errorf("nexus-writer: starting tracer: %w", err)
	}
	defer func() { _ = tr.Shutdown(context.Background()) }()

	control := grpcctl.New(logger)
	lis, err := net.Listen("tcp", cfg.ControlListenAddr)
	if err != nil {
		return fmt.Errorf("nexus-writer: control listener: %w", err)
	}
	go func() {
		if err := control.Serve(ctx, lis); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("control server exited")
		}
	}()

	client := bus.NewZmqClient(cfg.Bus.SubEndpoint, cfg.Bus.PubEndpoint, []string{
		cfg.Bus.InputTopic, "run-control", "logs", "sample-environment", "alarms",
	})
	defer client.Close()

	eng := engine.New(engine.Config{
		LocalTempDir:      cfg.LocalTempDir,
		LocalCompletedDir: cfg.LocalCompletedDir,
		FlushDelay:        cfg.RunTTL(),
		InstrumentName:    cfg.InstrumentName,
		ProgramName:       cfg.ProgramName,
		ProgramVersion:    cfg.ProgramVersion,
		Configuration:     cfg.Configuration,
	}, client, logger)

	if err := eng.Resume(); err != nil {
		logger.Warn().Err(err).Msg("resume encountered errors")
	}
	control.SetServing(grpcctl.ComponentFile, true)

	flushRequests := make(chan struct{}, 1)
	control.SetFlusher(&flushOnDemand{requests: flushRequests})

	if cfg.ArchivePath != "" {
		af := &archiveflusher.Flusher{
			LocalCompletedDir: cfg.LocalCompletedDir,
			ArchiveDir:        cfg.ArchivePath,
			Interval:          cfg.CachePollInterval(),
			Log:               logger,
		}
		go func() {
			if err := af.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("archive flusher exited")
			}
		}()
	}

	if err := client.Subscribe(bus.ContinuousOnly); err != nil {
		return fmt.Errorf("nexus-writer: subscribing: %w", err)
	}
	control.SetServing(grpcctl.ComponentBus, true)
	control.SetServing(grpcctl.ComponentCache, true)

	// eng is not safe for concurrent use, so every mutation (dispatch and
	// flush alike) happens on this one goroutine: a dedicated receiver
	// goroutine forwards bus messages over a channel instead of calling
	// into eng itself, and the select below interleaves them with the
	// flush ticker.
	recvCh := make(chan recvResult, 1)
	go forwardRecv(ctx, client, recvCh)

	ticker := time.NewTicker(cfg.CachePollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			_ = eng.Flush(time.Now())
			return nil
		case now := <-ticker.C:
			if err := eng.Flush(now); err != nil {
				logger.Warn().Err(err).Msg("flush error")
			}
		case r := <-recvCh:
			if r.err != nil {
				if ctx.Err() == nil {
					logger.Warn().Err(r.err).Msg("recv error")
				}
				continue
			}
			if err := dispatchMessage(eng, r.msg); err != nil {
				logger.Warn().Err(err).Str("topic", r.msg.Topic).Msg("handler error")
			}
		case <-flushRequests:
			if err := eng.Flush(time.Now()); err != nil {
				logger.Warn().Err(err).Msg("manual flush error")
			}
		}
	}
}

type recvResult struct {
	msg bus.Message
	err error
}

// forwardRecv pumps client.Recv results onto ch until ctx is cancelled, so
// the select loop above never blocks on the bus while a flush is due.
func forwardRecv(ctx context.Context, client bus.Client, ch chan<- recvResult) {
	for {
		msg, err := client.Recv(ctx)
		select {
		case ch <- recvResult{msg: msg, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && ctx.Err() != nil {
			return
		}
	}
}

// flushOnDemand adapts a manual-flush request into the single-owner select
// loop above instead of calling engine.Engine directly from the gRPC
// handler's goroutine.
type flushOnDemand struct{ requests chan<- struct{} }

func (f *flushOnDemand) Flush() error {
	select {
	case f.requests <- struct{}{}:
	default:
	}
	return nil
}

func dispatchMessage(eng *engine.Engine, msg bus.Message) error {
	switch messages.FlatbufferID(msg.Key) {
	case messages.IDRunStart:
		rs, err := nexuswire.DecodeRunStart(msg.Payload)
		if err != nil {
			return err
		}
		return eng.HandleRunStart(rs)
	case messages.IDRunStop:
		stop, err := nexuswire.DecodeRunStop(msg.Payload)
		if err != nil {
			return err
		}
		return eng.HandleRunStop(stop)
	case messages.IDFrameAssembledEventListV2:
		frame, err := nexuswire.DecodeAggregatedFrame(msg.Payload)
		if err != nil {
			return err
		}
		eng.HandleFrameEventList(frame)
		return nil
	case messages.IDLogData:
		d, err := nexuswire.DecodeLogData(msg.Payload)
		if err != nil {
			return err
		}
		eng.HandleRunLog(d)
		return nil
	case messages.IDSampleEnvironmentData:
		d, err := nexuswire.DecodeSampleEnvironmentData(msg.Payload)
		if err != nil {
			return err
		}
		eng.HandleSampleEnvironmentLog(d)
		return nil
	case messages.IDAlarm:
		a, err := nexuswire.DecodeAlarm(msg.Payload)
		if err != nil {
			return err
		}
		eng.HandleAlarm(a)
		return nil
	default:
		return nil
	}
}
