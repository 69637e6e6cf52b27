// Package config binds each binary's CLI surface to a Viper config file
// plus Cobra/pflag flag overrides, unmarshalling into one config struct
// per binary.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Bus holds the bus endpoint/credential/topic fields common to every
// binary.
type Bus struct {
	SubEndpoint   string `mapstructure:"sub_endpoint"`
	PubEndpoint   string `mapstructure:"pub_endpoint"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	InputTopic    string `mapstructure:"input_topic"`
	OutputTopic   string `mapstructure:"output_topic"`
}

// Observability holds the metrics/tracing fields common to every binary.
type Observability struct {
	MetricsEndpoint string `mapstructure:"metrics_endpoint"`
	OtlpEndpoint    string `mapstructure:"otlp_endpoint"`
	Namespace       string `mapstructure:"namespace"`
}

// DetectorConfig is trace-to-events' CLI surface.
type DetectorConfig struct {
	Bus           Bus           `mapstructure:"bus"`
	Observability Observability `mapstructure:"observability"`
	Polarity      string        `mapstructure:"polarity"` // "positive" or "negative"
	Baseline      struct {
		Window int `mapstructure:"window"`
	} `mapstructure:"baseline"`
	Discriminator struct {
		Mode         string  `mapstructure:"mode"` // "fixed", "differential", "advanced"
		Threshold    float64 `mapstructure:"threshold"`
		Duration     int     `mapstructure:"duration"`
		CoolOffTicks int     `mapstructure:"cool_off_ticks"`
	} `mapstructure:"discriminator"`
}

// AggregatorConfig is digitiser-aggregator's CLI surface.
type AggregatorConfig struct {
	Bus                Bus           `mapstructure:"bus"`
	Observability      Observability `mapstructure:"observability"`
	ExpectedDigitisers []uint8       `mapstructure:"expected_digitisers"`
	FrameTTLMillis     int64         `mapstructure:"frame_ttl_ms"`
	CachePollMillis    int64         `mapstructure:"cache_poll_ms"`
	SendFrameBufSize   int           `mapstructure:"send_frame_buffer_size"`
}

func (c AggregatorConfig) FrameTTL() time.Duration          { return time.Duration(c.FrameTTLMillis) * time.Millisecond }
func (c AggregatorConfig) CachePollInterval() time.Duration { return time.Duration(c.CachePollMillis) * time.Millisecond }

// NexusConfig is nexus-writer's CLI surface.
type NexusConfig struct {
	Bus               Bus           `mapstructure:"bus"`
	Observability     Observability `mapstructure:"observability"`
	LocalTempDir      string        `mapstructure:"local_temp_dir"`      // open runs' .nxs files
	LocalCompletedDir string        `mapstructure:"local_completed_dir"` // finished runs awaiting archival
	ArchivePath       string        `mapstructure:"archive_path"`        // final archive destination; empty disables archiving
	ChunkSizeMillis   int64         `mapstructure:"chunk_size_ms"`
	CachePollMillis   int64         `mapstructure:"cache_poll_ms"`
	RunTTLMillis      int64         `mapstructure:"run_ttl_ms"`
	InstrumentName    string        `mapstructure:"instrument_name"`
	ProgramName       string        `mapstructure:"program_name"`
	ProgramVersion    string        `mapstructure:"program_version"`
	Configuration     string        `mapstructure:"configuration"`
	ControlListenAddr string        `mapstructure:"control_listen_addr"`
}

func (c NexusConfig) CachePollInterval() time.Duration { return time.Duration(c.CachePollMillis) * time.Millisecond }
func (c NexusConfig) RunTTL() time.Duration            { return time.Duration(c.RunTTLMillis) * time.Millisecond }

// BindCommonFlags registers the bus/observability flags shared by every
// binary onto fs, and binds them into v under the given key prefixes.
// defaultInputTopic/defaultOutputTopic let each binary seed the bus topics
// it actually consumes/produces.
func BindCommonFlags(fs *pflag.FlagSet, v *viper.Viper, defaultInputTopic, defaultOutputTopic string) {
	fs.String("bus.sub-endpoint", "tcp://127.0.0.1:5555", "ZeroMQ SUB endpoint to receive bus messages on")
	fs.String("bus.pub-endpoint", "tcp://127.0.0.1:5556", "ZeroMQ PUB endpoint to publish bus messages on")
	fs.String("bus.consumer-group", "", "consumer group identifier")
	fs.String("bus.input-topic", defaultInputTopic, "bus topic to consume")
	fs.String("bus.output-topic", defaultOutputTopic, "bus topic to publish to")
	fs.String("observability.metrics-endpoint", "", "metrics exporter listen address")
	fs.String("observability.otlp-endpoint", "", "OpenTelemetry collector endpoint (empty disables tracing)")
	fs.String("observability.namespace", "nexus-pipeline", "OpenTelemetry service namespace")

	_ = v.BindPFlag("bus.sub_endpoint", fs.Lookup("bus.sub-endpoint"))
	_ = v.BindPFlag("bus.pub_endpoint", fs.Lookup("bus.pub-endpoint"))
	_ = v.BindPFlag("bus.consumer_group", fs.Lookup("bus.consumer-group"))
	_ = v.BindPFlag("bus.input_topic", fs.Lookup("bus.input-topic"))
	_ = v.BindPFlag("bus.output_topic", fs.Lookup("bus.output-topic"))
	_ = v.BindPFlag("observability.metrics_endpoint", fs.Lookup("observability.metrics-endpoint"))
	_ = v.BindPFlag("observability.otlp_endpoint", fs.Lookup("observability.otlp-endpoint"))
	_ = v.BindPFlag("observability.namespace", fs.Lookup("observability.namespace"))
}

// Load reads configFile (if non-empty) and environment variables prefixed
// NEXUS_PIPELINE_ into v, then unmarshals into out.
func Load(v *viper.Viper, configFile string, out interface{}) error {
	v.SetEnvPrefix("nexus_pipeline")
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("config: unmarshalling: %w", err)
	}
	return nil
}
