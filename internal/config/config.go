// Package config loads the daemon configuration from defaults, a TOML
// file, ACMONITOR_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"os"
	"strings"

	"codeberg.org/mutker/acmonitor/internal/acquisition"
	"codeberg.org/mutker/acmonitor/internal/errors"
	"codeberg.org/mutker/acmonitor/internal/flash"
	"codeberg.org/mutker/acmonitor/internal/metrics"
	"codeberg.org/mutker/acmonitor/internal/power"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel   = "info"
	DefaultConfigName = "acmonitor"
	DefaultConfigDir  = "/etc"
	DefaultEnvPrefix  = "ACMONITOR"
)

type Config struct {
	LogLevel    string            `mapstructure:"log_level"`
	Phases      int               `mapstructure:"phases"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Thresholds  ThresholdsConfig  `mapstructure:"thresholds"`
	MinCounts   MinCountsConfig   `mapstructure:"min_counts"`
	Buffers     BuffersConfig     `mapstructure:"buffers"`
	Flash       FlashConfig       `mapstructure:"flash"`
	Source      SourceConfig      `mapstructure:"source"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type CalibrationConfig struct {
	ADCScale       []float64 `mapstructure:"adc_scale"`
	VoltageFactors []float64 `mapstructure:"voltage_factors"`
	CurrentFactors []float64 `mapstructure:"current_factors"`
}

type ThresholdsConfig struct {
	PeakVoltage  float64   `mapstructure:"peak_voltage"`
	FrequencyMin float64   `mapstructure:"frequency_min"`
	FrequencyMax float64   `mapstructure:"frequency_max"`
	MaxCurrent   []float64 `mapstructure:"max_current"`
	VoltageMin   float64   `mapstructure:"voltage_min"`
	VoltageMax   float64   `mapstructure:"voltage_max"`
}

type MinCountsConfig struct {
	VoltageSpike  uint32 `mapstructure:"voltage_spike"`
	FrequencyHigh uint32 `mapstructure:"frequency_high"`
	FrequencyLow  uint32 `mapstructure:"frequency_low"`
	Overcurrent   uint32 `mapstructure:"overcurrent"`
	VoltageHigh   uint32 `mapstructure:"voltage_high"`
	VoltageLow    uint32 `mapstructure:"voltage_low"`
}

type BuffersConfig struct {
	PowerSamples int `mapstructure:"power_samples"`
	PowerEvents  int `mapstructure:"power_events"`
	Diagnostics  int `mapstructure:"diagnostics"`
	Waveform     int `mapstructure:"waveform"`
	RawSamples   int `mapstructure:"raw_samples"`
}

type FlashConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DBPath          string `mapstructure:"db_path"`
	BackupOnMigrate bool   `mapstructure:"backup_on_migrate"`
}

type SourceConfig struct {
	Kind        string  `mapstructure:"kind"`
	Port        string  `mapstructure:"port"`
	Baud        int     `mapstructure:"baud"`
	SampleRate  int     `mapstructure:"sample_rate"`
	Frequency   float64 `mapstructure:"frequency"`
	Voltage     float64 `mapstructure:"voltage"`
	Current     float64 `mapstructure:"current"`
	Overcurrent float64 `mapstructure:"overcurrent"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	cal := power.DefaultCalibration()
	th := power.DefaultThresholds()
	rules := power.DefaultRules()
	sizes := power.DefaultBufferSizes()
	fc := flash.DefaultConfig()

	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("phases", power.MaxPhases)

	v.SetDefault("calibration.adc_scale", toFloat64s(cal.ADCScale[:]))
	v.SetDefault("calibration.voltage_factors", toFloat64s(cal.VoltageFactors[:]))
	v.SetDefault("calibration.current_factors", toFloat64s(cal.CurrentFactors[:]))

	v.SetDefault("thresholds.peak_voltage", th.PeakVoltage)
	v.SetDefault("thresholds.frequency_min", th.FrequencyMin)
	v.SetDefault("thresholds.frequency_max", th.FrequencyMax)
	v.SetDefault("thresholds.max_current", toFloat64s(th.MaxCurrent[:]))
	v.SetDefault("thresholds.voltage_min", th.VoltageMin)
	v.SetDefault("thresholds.voltage_max", th.VoltageMax)

	v.SetDefault("min_counts.voltage_spike", rules[power.VoltageSpike].MinCount)
	v.SetDefault("min_counts.frequency_high", rules[power.FrequencyHigh].MinCount)
	v.SetDefault("min_counts.frequency_low", rules[power.FrequencyLow].MinCount)
	v.SetDefault("min_counts.overcurrent", rules[power.Overcurrent].MinCount)
	v.SetDefault("min_counts.voltage_high", rules[power.VoltageHigh].MinCount)
	v.SetDefault("min_counts.voltage_low", rules[power.VoltageLow].MinCount)

	v.SetDefault("buffers.power_samples", sizes.Samples)
	v.SetDefault("buffers.power_events", sizes.Events)
	v.SetDefault("buffers.diagnostics", 31)
	v.SetDefault("buffers.waveform", sizes.Waveform)
	v.SetDefault("buffers.raw_samples", acquisition.DefaultBufferSize)

	v.SetDefault("flash.enabled", fc.Enabled)
	v.SetDefault("flash.db_path", fc.DBPath)
	v.SetDefault("flash.backup_on_migrate", fc.BackupOnMigrate)

	v.SetDefault("source.kind", acquisition.KindSimulator)
	v.SetDefault("source.port", "")
	v.SetDefault("source.baud", acquisition.DefaultBaudRate)
	v.SetDefault("source.sample_rate", acquisition.DefaultSampleRate)
	v.SetDefault("source.frequency", 50.0)
	v.SetDefault("source.voltage", 230.0)
	v.SetDefault("source.current", 5.0)
	v.SetDefault("source.overcurrent", 1.0)

	v.SetDefault("metrics.listen", "")
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("acmonitor", pflag.ContinueOnError)
	fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Int("phases", power.MaxPhases, "Number of enabled phases (1 or 2)")
	fs.String("source", acquisition.KindSimulator, "Acquisition source (simulator, serial)")
	fs.String("port", "", "Serial port of the ADC front end")
	fs.Bool("flash", false, "Enable the flash storage fallback")
	fs.String("db-path", flash.DefaultConfig().DBPath, "Path to the flash database")
	fs.String("metrics-listen", "", "Address of the Prometheus endpoint, empty to disable")
	return fs
}

var flagKeys = map[string]string{
	"log-level":      "log_level",
	"phases":         "phases",
	"source":         "source.kind",
	"port":           "source.port",
	"flash":          "flash.enabled",
	"db-path":        "flash.db_path",
	"metrics-listen": "metrics.listen",
}

// Load reads the configuration from all sources and validates it.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix, args: os.Args[1:]}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path := o.configPath
	if f := fs.Lookup("config"); f.Changed {
		path = f.Value.String()
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(DefaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() && !strings.EqualFold(c.LogLevel, "warn") {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	invalid := func(field string, value any) error {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value any
		}{field, value})
	}

	if c.Phases < 1 || c.Phases > power.MaxPhases {
		return invalid("phases", c.Phases)
	}
	if len(c.Calibration.ADCScale) != 3 {
		return invalid("calibration.adc_scale", c.Calibration.ADCScale)
	}
	if len(c.Calibration.VoltageFactors) != power.MaxPhases {
		return invalid("calibration.voltage_factors", c.Calibration.VoltageFactors)
	}
	if len(c.Calibration.CurrentFactors) != power.MaxPhases {
		return invalid("calibration.current_factors", c.Calibration.CurrentFactors)
	}
	if len(c.Thresholds.MaxCurrent) != power.MaxPhases {
		return invalid("thresholds.max_current", c.Thresholds.MaxCurrent)
	}

	b := c.Buffers
	if b.PowerSamples <= 0 || b.PowerEvents <= 0 || b.Diagnostics <= 0 || b.Waveform <= 0 || b.RawSamples <= 0 {
		return invalid("buffers", b)
	}
	if c.Flash.Enabled && b.PowerSamples < flash.TriggerSamples {
		return invalid("buffers.power_samples", b.PowerSamples)
	}

	switch c.Source.Kind {
	case acquisition.KindSimulator:
	case acquisition.KindSerial:
		if c.Source.Port == "" {
			return invalid("source.port", c.Source.Port)
		}
	default:
		return invalid("source.kind", c.Source.Kind)
	}

	if err := c.PowerSettings().Validate(); err != nil {
		return err
	}
	if err := c.FlashConfig().Validate(); err != nil {
		return err
	}
	return c.MetricsConfig().Validate()
}

// PowerSettings maps the configuration onto the processing loop settings.
func (c *Config) PowerSettings() power.Settings {
	s := power.DefaultSettings()
	s.Phases = c.Phases

	copyFloat32s(s.Calibration.ADCScale[:], c.Calibration.ADCScale)
	copyFloat32s(s.Calibration.VoltageFactors[:], c.Calibration.VoltageFactors)
	copyFloat32s(s.Calibration.CurrentFactors[:], c.Calibration.CurrentFactors)

	th := c.Thresholds
	s.Thresholds = power.Thresholds{
		PeakVoltage:  float32(th.PeakVoltage),
		FrequencyMin: float32(th.FrequencyMin),
		FrequencyMax: float32(th.FrequencyMax),
		VoltageMin:   float32(th.VoltageMin),
		VoltageMax:   float32(th.VoltageMax),
	}
	copyFloat32s(s.Thresholds.MaxCurrent[:], th.MaxCurrent)

	mc := c.MinCounts
	s.Rules = power.DefaultRules().WithMinCounts(map[power.EventType]uint32{
		power.VoltageSpike:  mc.VoltageSpike,
		power.FrequencyHigh: mc.FrequencyHigh,
		power.FrequencyLow:  mc.FrequencyLow,
		power.Overcurrent:   mc.Overcurrent,
		power.VoltageHigh:   mc.VoltageHigh,
		power.VoltageLow:    mc.VoltageLow,
	})

	return s
}

func (c *Config) BufferSizes() power.BufferSizes {
	return power.BufferSizes{
		Samples:  c.Buffers.PowerSamples,
		Events:   c.Buffers.PowerEvents,
		Waveform: c.Buffers.Waveform,
	}
}

func (c *Config) FlashConfig() flash.Config {
	return flash.Config{
		Enabled:         c.Flash.Enabled,
		DBPath:          c.Flash.DBPath,
		BackupOnMigrate: c.Flash.BackupOnMigrate,
	}
}

func (c *Config) SourceConfig() acquisition.Config {
	s := c.PowerSettings()
	return acquisition.Config{
		Kind:        c.Source.Kind,
		Port:        c.Source.Port,
		Baud:        c.Source.Baud,
		BufferSize:  c.Buffers.RawSamples,
		SampleRate:  c.Source.SampleRate,
		Frequency:   c.Source.Frequency,
		Voltage:     c.Source.Voltage,
		Current:     c.Source.Current,
		Overcurrent: c.Source.Overcurrent,
		Phases:      c.Phases,
		Calibration: s.Calibration,
	}
}

func (c *Config) MetricsConfig() metrics.Config {
	return metrics.Config{Listen: c.Metrics.Listen}
}

func toFloat64s(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func copyFloat32s(dst []float32, src []float64) {
	for i := 0; i < len(dst) && i < len(src); i++ {
		dst[i] = float32(src[i])
	}
}
