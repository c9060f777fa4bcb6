package loader

import (
	"encoding/binary"
	"testing"
)

func TestSegmentFromPCM(t *testing.T) {
	frames := [][2]int32{{1 << 30, -(1 << 30)}, {0, 1 << 29}, {-(1 << 31), 0}}

	data := make([]byte, 0, len(frames)*8+3)
	for _, frame := range frames {
		data = binary.LittleEndian.AppendUint32(data, uint32(frame[0])) //nolint:gosec // test fixture
		data = binary.LittleEndian.AppendUint32(data, uint32(frame[1])) //nolint:gosec // test fixture
	}

	// A partial trailing frame is ignored.
	data = append(data, 1, 2, 3)

	seg := segmentFromPCM(data, 42.5, 1000, 2)

	if seg.Offset != 42.5 || seg.Frames() != 3 || seg.Duration != 0.003 {
		t.Fatalf("unexpected segment shape: offset %v, frames %d, duration %v", seg.Offset, seg.Frames(), seg.Duration)
	}

	want := [][]float64{{0.5, 0, -1}, {-0.5, 0.25, 0}}
	for ch := range want {
		for i, v := range want[ch] {
			if seg.Channels[ch][i] != v {
				t.Fatalf("channel %d frame %d: expected %v, got %v", ch, i, v, seg.Channels[ch][i])
			}
		}
	}
}
