package sensing

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kunsheng-liu/percept-engine/internal/types"
	"gocv.io/x/gocv"
)

// DatasetSource loads frame i's image and LiDAR file from a dataset root
// laid out per spec.md §6: "<root>/<i>/FRONT.jpeg" and
// "<root>/<i>/FRONT.txt". It backs the default PeripheralDataset sources:
// NewDatasetImageSource and NewDatasetLidarSource both wrap it.
type DatasetSource struct {
	Root string
}

// Produce loads frame's image and LiDAR points; both files must be present
// and well-formed.
func (d *DatasetSource) Produce(frame int) (types.Image, []types.LidarPoint, error) {
	dir := filepath.Join(d.Root, strconv.Itoa(frame))

	img, err := loadImage(filepath.Join(dir, "FRONT.jpeg"))
	if err != nil {
		return types.Image{}, nil, types.Newf(types.KindSensing, "sensing.dataset.image", err)
	}

	lidar, err := loadLidar(filepath.Join(dir, "FRONT.txt"))
	if err != nil {
		return types.Image{}, nil, types.Newf(types.KindSensing, "sensing.dataset.lidar", err)
	}

	return img, lidar, nil
}

func loadImage(path string) (types.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return types.Image{}, fmt.Errorf("missing image file %q: %w", path, err)
	}
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return types.Image{}, fmt.Errorf("failed to decode JPEG %q", path)
	}
	defer mat.Close()

	h, w := mat.Rows(), mat.Cols()
	pix := make([]byte, w*h*types.Channels)
	copy(pix, mat.ToBytes())
	return types.Image{Width: w, Height: h, Pix: pix}, nil
}

// loadLidar parses the LiDAR text format from spec.md §4.1: UTF-8, first
// line is a discarded header, each subsequent line is
// "<int x>\t<int y>\t<float range>\n". Any malformed line is fatal
// (SensingError), matching the spec's "malformed lines are fatal" rule.
func loadLidar(path string) ([]types.LidarPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("missing lidar file %q: %w", path, err)
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	if !scan.Scan() {
		return nil, fmt.Errorf("lidar file %q has no header line", path)
	}

	var points []types.LidarPoint
	lineNo := 1
	for scan.Scan() {
		lineNo++
		line := scan.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("lidar file %q line %d: expected 3 tab-separated fields, got %d", path, lineNo, len(fields))
		}
		x, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, fmt.Errorf("lidar file %q line %d: bad x: %w", path, lineNo, err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("lidar file %q line %d: bad y: %w", path, lineNo, err)
		}
		r, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("lidar file %q line %d: bad range: %w", path, lineNo, err)
		}
		points = append(points, types.LidarPoint{X: x, Y: y, Range: r})
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("lidar file %q: %w", path, err)
	}
	return points, nil
}
