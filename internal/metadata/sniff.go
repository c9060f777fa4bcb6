package metadata

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Container names, as reported in MetadataAudit.Container.
const (
	ContainerFLAC    = "flac"
	ContainerWAV     = "wav"
	ContainerMP3     = "mp3"
	ContainerADTS    = "adts"
	ContainerOgg     = "ogg"
	ContainerMP4     = "mp4"
	ContainerAIFF    = "aiff"
	ContainerWavPack = "wavpack"
	ContainerAPE     = "ape"
	ContainerTTA     = "tta"
	ContainerMKV     = "matroska"
	ContainerUnknown = "unknown"
)

const (
	id3HeaderSize = 10
	// How far past the start (or the ID3 tag) the first MPEG frame is looked for.
	mpegScanWindow = 64 * 1024
)

// header is what could be read from the container without external tools.
type header struct {
	container  string
	codec      string
	sampleRate int
	channels   int
	bitDepth   int
	bitrate    int64 // bits/s
	duration   float64
}

//nolint:gochecknoglobals // lookup tables
var (
	mpegBitratesV1 = [3][15]int{
		{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448}, // layer I
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384},    // layer II
		{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320},     // layer III
	}
	mpegBitratesV2 = [3][15]int{
		{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
		{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160},
	}
	mpegSampleRates = map[int][3]int{
		3: {44100, 48000, 32000}, // MPEG-1
		2: {22050, 24000, 16000}, // MPEG-2
		0: {11025, 12000, 8000},  // MPEG-2.5
	}
)

type mpegFrame struct {
	version    int // raw version bits: 3 = MPEG-1, 2 = MPEG-2, 0 = MPEG-2.5
	layer      int // 1, 2 or 3
	bitrate    int // bits/s
	sampleRate int
	channels   int
	length     int // bytes, including the header
}

// parseMPEGFrame decodes a 4-byte MPEG audio frame header.
func parseMPEGFrame(b []byte) (mpegFrame, bool) {
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return mpegFrame{}, false
	}

	version := int(b[1]>>3) & 0x3
	layerBits := int(b[1]>>1) & 0x3
	bitrateIdx := int(b[2] >> 4)
	rateIdx := int(b[2]>>2) & 0x3
	padding := int(b[2]>>1) & 0x1
	mode := int(b[3] >> 6)

	if version == 1 || layerBits == 0 || bitrateIdx == 0 || bitrateIdx == 15 || rateIdx == 3 {
		return mpegFrame{}, false
	}

	layer := 4 - layerBits
	frame := mpegFrame{version: version, layer: layer, sampleRate: mpegSampleRates[version][rateIdx], channels: 2}

	if mode == 3 {
		frame.channels = 1
	}

	if version == 3 {
		frame.bitrate = mpegBitratesV1[layer-1][bitrateIdx] * 1000
	} else {
		frame.bitrate = mpegBitratesV2[layer-1][bitrateIdx] * 1000
	}

	switch {
	case layer == 1:
		frame.length = (12*frame.bitrate/frame.sampleRate + padding) * 4
	case layer == 3 && version != 3:
		frame.length = 72*frame.bitrate/frame.sampleRate + padding
	default:
		frame.length = 144*frame.bitrate/frame.sampleRate + padding
	}

	return frame, frame.length > 4
}

// findMPEGFrame returns the first frame header in data that is followed by another valid header,
// or a lone header at the very start.
func findMPEGFrame(data []byte) (mpegFrame, bool) {
	limit := min(len(data)-4, mpegScanWindow)

	for i := 0; i <= limit; i++ {
		frame, ok := parseMPEGFrame(data[i:])
		if !ok {
			continue
		}

		next := i + frame.length
		if next+4 <= len(data) {
			if _, ok = parseMPEGFrame(data[next:]); ok {
				return frame, true
			}

			continue
		}

		if i == 0 {
			return frame, true
		}
	}

	return mpegFrame{}, false
}

// id3Size returns the size of a leading ID3v2 tag, 0 when absent.
func id3Size(data []byte) int {
	if len(data) < id3HeaderSize || !bytes.HasPrefix(data, []byte("ID3")) {
		return 0
	}

	// Syncsafe integer: 7 bits per byte.
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	total := id3HeaderSize + size

	if data[5]&0x10 != 0 {
		total += id3HeaderSize // footer
	}

	return total
}

// parseFLAC reads STREAMINFO, which must be the first metadata block.
func parseFLAC(data []byte) (header, bool) {
	const streamInfoLen = 34

	hdr := header{container: ContainerFLAC, codec: "flac"}

	if len(data) < 8+streamInfoLen || data[4]&0x7F != 0 {
		return hdr, false
	}

	info := data[8 : 8+streamInfoLen]
	hdr.sampleRate = int(info[10])<<12 | int(info[11])<<4 | int(info[12])>>4
	hdr.channels = int(info[12]>>1&0x7) + 1
	hdr.bitDepth = int(info[12]&0x1)<<4 | int(info[13]>>4) + 1

	total := uint64(info[13]&0x0F)<<32 | uint64(binary.BigEndian.Uint32(info[14:18]))
	if hdr.sampleRate > 0 {
		hdr.duration = float64(total) / float64(hdr.sampleRate)
	}

	return hdr, hdr.sampleRate > 0
}

// oggCodec looks for the identification packet of the first logical stream.
func oggCodec(data []byte) string {
	head := data[:min(len(data), 512)]

	switch {
	case bytes.Contains(head, []byte("OpusHead")):
		return "opus"
	case bytes.Contains(head, []byte("\x01vorbis")):
		return "vorbis"
	case bytes.Contains(head, []byte("\x7fFLAC")):
		return "flac"
	}

	return ""
}

func isADTS(data []byte) bool {
	return len(data) >= 7 && data[0] == 0xFF && data[1]&0xF6 == 0xF0
}

// sniff identifies the container from magic bytes. ok is false when the header is not recognized.
func sniff(data []byte) (header, bool) {
	switch {
	case bytes.HasPrefix(data, []byte("fLaC")):
		return parseFLAC(data)
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return header{container: ContainerWAV}, true
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("FORM")) &&
		(bytes.Equal(data[8:12], []byte("AIFF")) || bytes.Equal(data[8:12], []byte("AIFC"))):
		return header{container: ContainerAIFF, codec: "pcm"}, true
	case bytes.HasPrefix(data, []byte("OggS")):
		return header{container: ContainerOgg, codec: oggCodec(data)}, true
	case len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")):
		return header{container: ContainerMP4}, true
	case bytes.HasPrefix(data, []byte("wvpk")):
		return header{container: ContainerWavPack, codec: "wavpack"}, true
	case bytes.HasPrefix(data, []byte("MAC ")):
		return header{container: ContainerAPE, codec: "ape"}, true
	case bytes.HasPrefix(data, []byte("TTA1")):
		return header{container: ContainerTTA, codec: "tta"}, true
	case bytes.HasPrefix(data, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML: Matroska and WebM carry almost any codec, ffprobe names it.
		return header{container: ContainerMKV}, true
	case isADTS(data):
		return header{container: ContainerADTS, codec: "aac"}, true
	}

	start := id3Size(data)
	if start >= len(data) {
		return header{container: ContainerMP3, codec: "mp3"}, false
	}

	if start > 0 || (len(data) > 1 && data[0] == 0xFF) {
		frame, ok := findMPEGFrame(data[start:])
		if !ok {
			return header{container: ContainerMP3, codec: "mp3"}, false
		}

		return header{
			container:  ContainerMP3,
			codec:      mpegCodec(frame.layer),
			sampleRate: frame.sampleRate,
			channels:   frame.channels,
			bitrate:    int64(frame.bitrate),
		}, true
	}

	return header{container: ContainerUnknown}, false
}

func mpegCodec(layer int) string {
	switch layer {
	case 1:
		return "mp1"
	case 2: //nolint:mnd
		return "mp2"
	}

	return "mp3"
}

// probedContainer maps an ffprobe format_name list onto the container names above.
func probedContainer(formatName string) string {
	first, _, _ := strings.Cut(formatName, ",")

	switch first {
	case "":
		return ContainerUnknown
	case "flac":
		return ContainerFLAC
	case "wav":
		return ContainerWAV
	case "mp3":
		return ContainerMP3
	case "aac":
		return ContainerADTS
	case "ogg":
		return ContainerOgg
	case "mov":
		return ContainerMP4
	case "aiff":
		return ContainerAIFF
	case "wv":
		return ContainerWavPack
	case "ape":
		return ContainerAPE
	case "tta":
		return ContainerTTA
	case "matroska":
		return ContainerMKV
	}

	return first
}
