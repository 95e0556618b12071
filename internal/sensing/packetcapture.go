package sensing

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/kunsheng-liu/percept-engine/internal/logging"
	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// lidarUDPPort is the well-known port this platform's LiDAR unit streams
// range packets to, mirroring the teacher's network-listener convention of
// one fixed port per sensor type.
const lidarUDPPort = 2368

// pointRecordSize is the wire size of one LiDAR point record: two
// big-endian int32 pixel coordinates and a big-endian float32 range. The
// range carries float32 precision, while the dataset text loader parses
// it as float64.
const pointRecordSize = 12

// PacketCaptureSource is the PeripheralPacketCapture LiDAR backend: it
// listens for UDP LiDAR packets on a live network interface and decodes
// them with gopacket, grounded on the teacher's internal/lidar/network
// listener shape (capture handle -> packet source -> layer decode).
type PacketCaptureSource struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

// OpenPacketCaptureSource opens ifaceName in promiscuous mode and filters
// for UDP traffic on lidarUDPPort.
func OpenPacketCaptureSource(ifaceName string) (*PacketCaptureSource, error) {
	handle, err := pcap.OpenLive(ifaceName, 65536, true, pcap.BlockForever)
	if err != nil {
		return nil, types.Newf(types.KindConfig, "sensing.packetcapture.open", err)
	}
	filter := fmt.Sprintf("udp and dst port %d", lidarUDPPort)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, types.Newf(types.KindConfig, "sensing.packetcapture.filter", err)
	}
	return &PacketCaptureSource{
		handle: handle,
		source: gopacket.NewPacketSource(handle, handle.LinkType()),
	}, nil
}

// Read blocks until minPoints LiDAR points have been decoded from incoming
// packets. Each UDP payload is a flat array of pointRecordSize-byte
// records; trailing bytes that do not fill a whole record are silently
// ignored, and points beyond minPoints are discarded.
func (p *PacketCaptureSource) Read(minPoints int) ([]types.LidarPoint, error) {
	points := make([]types.LidarPoint, 0, minPoints)
	for len(points) < minPoints {
		packet, err := p.source.NextPacket()
		if err != nil {
			return nil, types.Newf(types.KindSensing, "sensing.packetcapture.read", err)
		}
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, _ := udpLayer.(*layers.UDP)
		decoded, err := decodePointRecords(udp.Payload)
		if err != nil {
			logging.Warnf("sensing.packetcapture: dropping malformed packet: %v", err)
			continue
		}
		points = append(points, decoded...)
	}
	if len(points) > minPoints {
		points = points[:minPoints]
	}
	return points, nil
}

func decodePointRecords(payload []byte) ([]types.LidarPoint, error) {
	n := len(payload) / pointRecordSize
	out := make([]types.LidarPoint, 0, n)
	for i := 0; i < n; i++ {
		off := i * pointRecordSize
		x := int32(binary.BigEndian.Uint32(payload[off : off+4]))
		y := int32(binary.BigEndian.Uint32(payload[off+4 : off+8]))
		bits := binary.BigEndian.Uint32(payload[off+8 : off+12])
		r := math.Float32frombits(bits)
		out = append(out, types.LidarPoint{X: int(x), Y: int(y), Range: float64(r)})
	}
	return out, nil
}

// Close releases the capture handle.
func (p *PacketCaptureSource) Close() error {
	p.handle.Close()
	return nil
}
