// Command percept-engine runs the orchestration lifecycle from spec.md
// §4.6: initialize globals, start the Sensing Engine, run the configured
// Inference Engine for FRAME_NUM frames, request sensing stop, tear down
// globals in reverse construction order. Matches the teacher's root
// main.go shape: flag-based startup, log.Fatalf on unrecoverable
// initialization failure, defer-ordered teardown.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/kunsheng-liu/percept-engine/internal/config"
	"github.com/kunsheng-liu/percept-engine/internal/cps"
	"github.com/kunsheng-liu/percept-engine/internal/engine"
	"github.com/kunsheng-liu/percept-engine/internal/handshake"
	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"github.com/kunsheng-liu/percept-engine/internal/modelrt"
	"github.com/kunsheng-liu/percept-engine/internal/sensing"
	"github.com/kunsheng-liu/percept-engine/internal/sge"
	"github.com/kunsheng-liu/percept-engine/internal/telemetry"
	"github.com/kunsheng-liu/percept-engine/internal/types"
)

var configPath = flag.String("config", "", "path to a JSON startup configuration file (spec.md §6); omitted means compiled defaults")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("percept-engine: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("percept-engine: %v", err)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	if err := run(cfg); err != nil {
		log.Fatalf("percept-engine: %v", err)
	}
}

// run builds every process-scoped object, drives the two-engine
// lifecycle, and tears down in reverse construction order. A non-nil
// return corresponds to a fatal initialization failure (spec.md §6 exit
// codes); errors inside a single frame are logged and swallowed well
// before they reach here.
func run(cfg config.Config) error {
	models, modelOrder, variant, err := buildVariant(cfg)
	if err != nil {
		return err
	}
	defer closeModels(models)

	var statsSink engine.StatsSink
	var journal *telemetry.Journal
	if cfg.Telemetry.Enabled {
		journal, err = telemetry.Open(cfg.Telemetry.JournalPath)
		if err != nil {
			return fmt.Errorf("telemetry journal: %w", err)
		}
		defer journal.Close()
	}
	dashboard := telemetry.NewDashboard()
	if cfg.Telemetry.Enabled && cfg.Telemetry.DashboardAddr != "" {
		mux := http.NewServeMux()
		dashboard.AttachRoutes(mux)
		srv := &http.Server{Addr: cfg.Telemetry.DashboardAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Errorf("telemetry: dashboard server: %v", err)
			}
		}()
	}
	statsSink = fanOutSink{dashboard: dashboard, journal: journal}

	slot := handshake.New()

	images, lidar, err := buildSensorSources(cfg)
	if err != nil {
		return err
	}
	sensingEngine := sensing.New(images, lidar, slot, cfg.FrameCount)

	inferenceEngine := engine.New(slot, variant, cfg.SensingPeriod, cfg.FrameCount, statsSink)

	logging.Infof("percept-engine: starting engine=%s frames=%d models=%v", cfg.Engine, cfg.FrameCount, modelOrder)
	sensingEngine.Start()
	inferenceEngine.Run()
	sensingEngine.Stop()
	sensingEngine.Wait()

	logging.Infof("percept-engine: completed %d frames cleanly", cfg.FrameCount)
	return nil
}

// buildSensorSources wires the Sensing Engine's image/LiDAR backends
// according to peripheral_mask (spec.md §6). The camera always comes
// from the dataset loader (SPEC_FULL.md §6); only the LiDAR backend
// varies.
func buildSensorSources(cfg config.Config) (sensing.ImageSource, sensing.LidarSource, error) {
	images := sensing.NewDatasetImageSource(cfg.DatasetPath)

	switch {
	case cfg.PeripheralMask&config.PeripheralSerial != 0:
		src, err := sensing.OpenSerialSource(cfg.SerialPort)
		if err != nil {
			return nil, nil, fmt.Errorf("sensing: open serial source: %w", err)
		}
		return images, sensing.NewSerialLidarSource(src), nil
	case cfg.PeripheralMask&config.PeripheralPacketCapture != 0:
		src, err := sensing.OpenPacketCaptureSource(cfg.PacketCaptureIf)
		if err != nil {
			return nil, nil, fmt.Errorf("sensing: open packet capture source: %w", err)
		}
		return images, sensing.NewPacketCaptureLidarSource(src), nil
	default:
		return images, sensing.NewDatasetLidarSource(cfg.DatasetPath), nil
	}
}

// buildVariant loads the configured engine's registered models and
// assembles its engine.Variant. Model load failure is a fatal
// ConfigError (spec.md §7): the process cannot run without its models.
func buildVariant(cfg config.Config) (map[string]*modelrt.Model, []string, engine.Variant, error) {
	switch cfg.Engine {
	case config.EngineCPS:
		shapes := config.Selected(config.CPSModelShapes(), cfg.ModelMask)
		models, order, err := openModels(cfg.ModelPath, shapes, modelrt.VariantClassification)
		if err != nil {
			return nil, nil, engine.Variant{}, err
		}
		return models, order, cps.NewVariant(shapes, cfg.LidarRangeMax, asCPSModels(models)), nil

	case config.EngineSGE:
		shapes := config.Selected(config.SGEModelShapes(), cfg.ModelMask)
		models, order, err := openModels(cfg.ModelPath, shapes, modelrt.VariantDetection)
		if err != nil {
			return nil, nil, engine.Variant{}, err
		}
		return models, order, sge.NewVariant(order, asSGEModels(models)), nil

	default:
		return nil, nil, engine.Variant{}, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

func openModels(modelDir string, shapes []types.ModelShape, variant modelrt.Variant) (map[string]*modelrt.Model, []string, error) {
	models := make(map[string]*modelrt.Model, len(shapes))
	order := make([]string, 0, len(shapes))
	for _, shape := range shapes {
		m, err := modelrt.Open(modelDir, shape, variant)
		if err != nil {
			closeModels(models)
			return nil, nil, types.Newf(types.KindConfig, "main.open_models", err)
		}
		models[shape.Name] = m
		order = append(order, shape.Name)
	}
	return models, order, nil
}

func closeModels(models map[string]*modelrt.Model) {
	for name, m := range models {
		if err := m.Close(); err != nil {
			logging.Warnf("main: closing model %s: %v", name, err)
		}
	}
}

func asCPSModels(models map[string]*modelrt.Model) map[string]cps.Model {
	out := make(map[string]cps.Model, len(models))
	for name, m := range models {
		out[name] = m
	}
	return out
}

func asSGEModels(models map[string]*modelrt.Model) map[string]sge.Model {
	out := make(map[string]sge.Model, len(models))
	for name, m := range models {
		out[name] = m
	}
	return out
}

// fanOutSink forwards frame stats to whichever telemetry consumers are
// enabled. A nil journal is valid and simply skipped.
type fanOutSink struct {
	dashboard *telemetry.Dashboard
	journal   *telemetry.Journal
}

func (f fanOutSink) Observe(stats engine.Stats) {
	f.dashboard.Observe(stats)
	if f.journal != nil {
		_ = f.journal.Record(stats, time.Now())
	}
}
