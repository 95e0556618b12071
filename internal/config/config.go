// Package config loads startup configuration the way the teacher's
// internal/config.TuningConfig does: a JSON file of optional pointer
// fields layered over compiled-in defaults, plus a handful of flag
// overrides for the options an operator actually toggles on the command
// line. See spec.md §6 for the recognized option table.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Engine selects which scheduler variant the Inference Engine runs.
type Engine string

const (
	EngineCPS Engine = "CPS"
	EngineSGE Engine = "SGE"
)

// Peripheral is a bitmask selecting which sensor transport feeds the
// Sensing Engine (spec.md §6 peripheral_mask). Bits beyond PeripheralAudio
// are reserved; this system does not consume audio, but the bit is kept so
// a config file written for the original platform still parses.
type Peripheral uint8

const (
	PeripheralDataset Peripheral = 1 << iota
	PeripheralSerial
	PeripheralPacketCapture
	PeripheralAudio
)

// ModelMask selects which registered models to load, one bit per entry in
// the canonical registration order (spec.md §6 model_mask).
type ModelMask uint32

// AllModels selects every registered model.
const AllModels ModelMask = ^ModelMask(0)

// Config is the fully-resolved startup configuration.
type Config struct {
	Engine          Engine
	FrameCount      int
	SensingPeriod   time.Duration
	LidarRangeMax   float64
	PeripheralMask  Peripheral
	ModelMask       ModelMask
	LogLevel        string
	DatasetPath     string
	ModelPath       string
	LabelPath       string
	SerialPort      string // used when PeripheralMask selects PeripheralSerial
	PacketCaptureIf string // network interface, used when PeripheralMask selects PeripheralPacketCapture

	// Telemetry is optional and disabled unless explicitly turned on.
	Telemetry TelemetryConfig
}

// TelemetryConfig controls the optional journal + dashboard described in
// SPEC_FULL.md §6.
type TelemetryConfig struct {
	Enabled       bool
	JournalPath   string
	DashboardAddr string // empty disables the admin HTTP surface
}

// Default returns the compiled-in defaults, matching the literal constants
// named throughout spec.md.
func Default() Config {
	return Config{
		Engine:         EngineCPS,
		FrameCount:     100,
		SensingPeriod:  100 * time.Millisecond,
		LidarRangeMax:  75.0,
		PeripheralMask: PeripheralDataset,
		ModelMask:      AllModels,
		LogLevel:       "I",
		DatasetPath:    "./dataset",
		ModelPath:      "./models",
		LabelPath:      "./labels.txt",
	}
}

// fileOverrides mirrors TuningConfig: every field is an optional pointer so
// a partial JSON file only overrides what it mentions.
type fileOverrides struct {
	Engine          *string  `json:"engine,omitempty"`
	FrameCount      *int     `json:"frame_count,omitempty"`
	SensingPeriodMS *int     `json:"sensing_period_ms,omitempty"`
	LidarRangeMax   *float64 `json:"lidar_range_max,omitempty"`
	PeripheralMask  *uint8   `json:"peripheral_mask,omitempty"`
	ModelMask       *uint32  `json:"model_mask,omitempty"`
	LogLevel        *string  `json:"log_level,omitempty"`
	DatasetPath     *string  `json:"dataset_path,omitempty"`
	ModelPath       *string  `json:"model_path,omitempty"`
	LabelPath       *string  `json:"label_path,omitempty"`
	SerialPort      *string  `json:"serial_port,omitempty"`
	PacketCaptureIf *string  `json:"packet_capture_if,omitempty"`

	Telemetry *struct {
		Enabled       *bool   `json:"enabled,omitempty"`
		JournalPath   *string `json:"journal_path,omitempty"`
		DashboardAddr *string `json:"dashboard_addr,omitempty"`
	} `json:"telemetry,omitempty"`
}

// Load reads path (if non-empty) as a JSON fileOverrides document and
// applies it on top of Default(). A missing path is not an error: callers
// that want "defaults only" pass "".
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	var ov fileOverrides
	if err := json.Unmarshal(data, &ov); err != nil {
		return Config{}, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}
	applyOverrides(&cfg, ov)
	return cfg, nil
}

func applyOverrides(cfg *Config, ov fileOverrides) {
	if ov.Engine != nil {
		cfg.Engine = Engine(*ov.Engine)
	}
	if ov.FrameCount != nil {
		cfg.FrameCount = *ov.FrameCount
	}
	if ov.SensingPeriodMS != nil {
		cfg.SensingPeriod = time.Duration(*ov.SensingPeriodMS) * time.Millisecond
	}
	if ov.LidarRangeMax != nil {
		cfg.LidarRangeMax = *ov.LidarRangeMax
	}
	if ov.PeripheralMask != nil {
		cfg.PeripheralMask = Peripheral(*ov.PeripheralMask)
	}
	if ov.ModelMask != nil {
		cfg.ModelMask = ModelMask(*ov.ModelMask)
	}
	if ov.LogLevel != nil {
		cfg.LogLevel = *ov.LogLevel
	}
	if ov.DatasetPath != nil {
		cfg.DatasetPath = *ov.DatasetPath
	}
	if ov.ModelPath != nil {
		cfg.ModelPath = *ov.ModelPath
	}
	if ov.LabelPath != nil {
		cfg.LabelPath = *ov.LabelPath
	}
	if ov.SerialPort != nil {
		cfg.SerialPort = *ov.SerialPort
	}
	if ov.PacketCaptureIf != nil {
		cfg.PacketCaptureIf = *ov.PacketCaptureIf
	}
	if ov.Telemetry != nil {
		if ov.Telemetry.Enabled != nil {
			cfg.Telemetry.Enabled = *ov.Telemetry.Enabled
		}
		if ov.Telemetry.JournalPath != nil {
			cfg.Telemetry.JournalPath = *ov.Telemetry.JournalPath
		}
		if ov.Telemetry.DashboardAddr != nil {
			cfg.Telemetry.DashboardAddr = *ov.Telemetry.DashboardAddr
		}
	}
}

// Validate checks the mutually-exclusive peripheral_mask rule from
// SPEC_FULL.md §6: exactly one LiDAR-source bit may be set.
func (c Config) Validate() error {
	n := 0
	for _, b := range []Peripheral{PeripheralDataset, PeripheralSerial, PeripheralPacketCapture} {
		if c.PeripheralMask&b != 0 {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("config: peripheral_mask must select exactly one LiDAR source, got mask=%#x", c.PeripheralMask)
	}
	if c.Engine != EngineCPS && c.Engine != EngineSGE {
		return fmt.Errorf("config: unknown engine %q", c.Engine)
	}
	return nil
}
