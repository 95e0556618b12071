package sensing

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"github.com/kunsheng-liu/percept-engine/internal/types"
	"go.bug.st/serial"
)

// allowedCommands is the two-character command allowlist sent to the
// device during Initialize, reused from the teacher's commands.go idiom:
// only a fixed vocabulary of short device commands may ever be written to
// the port.
var allowedCommands = []string{
	"OJ", // set output format to a simple CSV line
	"OS", // enable speed/range reporting
	"AX", // reset to factory defaults
}

// SerialSource is the PeripheralSerial LiDAR backend: a live radar/LiDAR
// device on a serial port, reporting "<x>,<y>,<range>\n" lines. It is
// grounded on the teacher's internal/serialmux.SerialMux Monitor/Subscribe
// select-loop, collapsed to a single subscriber since the Sensing Engine
// is this source's only consumer.
type SerialSource struct {
	port serial.Port

	mu      sync.Mutex
	lines   chan string
	cancel  context.CancelFunc
	started bool
}

// OpenSerialSource opens portName at the radar's fixed baud rate and
// starts the background line monitor.
func OpenSerialSource(portName string) (*SerialSource, error) {
	mode := &serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, types.Newf(types.KindConfig, "sensing.serial.open", err)
	}
	s := &SerialSource{port: port, lines: make(chan string)}
	if err := s.initialize(); err != nil {
		port.Close()
		return nil, err
	}
	s.start()
	return s, nil
}

func (s *SerialSource) initialize() error {
	for _, cmd := range allowedCommands {
		if err := s.sendCommand(cmd); err != nil {
			return types.Newf(types.KindConfig, "sensing.serial.initialize", err)
		}
	}
	return nil
}

func (s *SerialSource) sendCommand(cmd string) error {
	allowed := false
	for _, c := range allowedCommands {
		if c == cmd {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("command %q is not in the allowlist", cmd)
	}
	payload := cmd
	if !strings.HasSuffix(payload, "\n") {
		payload += "\n"
	}
	n, err := s.port.Write([]byte(payload))
	if err != nil {
		return err
	}
	if n != len(payload) {
		return fmt.Errorf("short write sending command %q", cmd)
	}
	return nil
}

func (s *SerialSource) start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.monitor(ctx)
	s.started = true
}

// monitor is the concurrent "while true" select loop: read a line, push
// it to the single subscriber channel, or exit on cancellation.
func (s *SerialSource) monitor(ctx context.Context) {
	scan := bufio.NewScanner(s.port)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if !scan.Scan() {
				if err := scan.Err(); err != nil {
					logging.Errorf("sensing.serial: read error: %v", err)
				}
				return
			}
			line := scan.Text()
			select {
			case s.lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Read blocks until a full frame's worth of LiDAR lines has been parsed.
// minPoints is treated as "enough" for one frame — a live radar has no
// inherent frame boundary, unlike the dataset format's per-directory file.
func (s *SerialSource) Read(minPoints int) ([]types.LidarPoint, error) {
	points := make([]types.LidarPoint, 0, minPoints)
	for len(points) < minPoints {
		line, ok := <-s.lines
		if !ok {
			return nil, types.Newf(types.KindSensing, "sensing.serial.read", fmt.Errorf("port closed"))
		}
		pt, err := parseRadarLine(line)
		if err != nil {
			logging.Warnf("sensing.serial: dropping malformed line %q: %v", line, err)
			continue
		}
		points = append(points, pt)
	}
	return points, nil
}

func parseRadarLine(line string) (types.LidarPoint, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return types.LidarPoint{}, fmt.Errorf("expected 3 comma-separated fields, got %d", len(fields))
	}
	x, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return types.LidarPoint{}, fmt.Errorf("bad x: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return types.LidarPoint{}, fmt.Errorf("bad y: %w", err)
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return types.LidarPoint{}, fmt.Errorf("bad range: %w", err)
	}
	return types.LidarPoint{X: x, Y: y, Range: r}, nil
}

// Close stops the monitor goroutine and releases the port.
func (s *SerialSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	return s.port.Close()
}
