// Package metadata audits container and codec headers for signs of a spoofed or mislabeled file.
package metadata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-audio/wav"

	"github.com/farcloser/assay/internal/integration/binary"
	"github.com/farcloser/assay/internal/integration/ffprobe"
	"github.com/farcloser/assay/internal/types"
)

const (
	headBytes = 128 * 1024

	minSampleRate = 8000
	maxSampleRate = 384000
	minChannels   = 1
	maxChannels   = 16

	FindingUnreadable = "unreadable header"
)

type bitrateBand struct {
	low, high int64
}

// Plausible bit rates per codec, bits/s. Lossless bands are wide on purpose: they only catch nonsense.
//
//nolint:gochecknoglobals // lookup tables
var (
	bitrateBands = map[string]bitrateBand{
		"mp1":     {32_000, 448_000},
		"mp2":     {8_000, 384_000},
		"mp3":     {8_000, 320_000},
		"aac":     {8_000, 576_000},
		"vorbis":  {8_000, 500_000},
		"opus":    {6_000, 510_000},
		"flac":    {64_000, 40_000_000},
		"alac":    {64_000, 40_000_000},
		"wavpack": {32_000, 40_000_000},
		"ape":     {64_000, 40_000_000},
		"tta":     {64_000, 40_000_000},
	}

	extensions = map[string]string{
		".flac": ContainerFLAC,
		".wav":  ContainerWAV,
		".wave": ContainerWAV,
		".mp3":  ContainerMP3,
		".aac":  ContainerADTS,
		".ogg":  ContainerOgg,
		".oga":  ContainerOgg,
		".opus": ContainerOgg,
		".m4a":  ContainerMP4,
		".mp4":  ContainerMP4,
		".alac": ContainerMP4,
		".aif":  ContainerAIFF,
		".aiff": ContainerAIFF,
		".aifc": ContainerAIFF,
		".wv":   ContainerWavPack,
		".ape":  ContainerAPE,
		".tta":  ContainerTTA,
		".mka":  ContainerMKV,
		".mkv":  ContainerMKV,
		".webm": ContainerMKV,
	}

	// Codecs each container may legitimately carry. A "pcm" entry matches every pcm_* codec.
	containerCodecs = map[string][]string{
		ContainerFLAC:    {"flac"},
		ContainerWAV:     {"pcm", "adpcm_ms", "adpcm_ima_wav", "mp3", "gsm_ms"},
		ContainerMP3:     {"mp1", "mp2", "mp3"},
		ContainerADTS:    {"aac"},
		ContainerOgg:     {"vorbis", "opus", "flac", "speex"},
		ContainerMP4:     {"aac", "alac", "mp3", "ac3", "eac3"},
		ContainerAIFF:    {"pcm"},
		ContainerWavPack: {"wavpack"},
		ContainerAPE:     {"ape"},
		ContainerTTA:     {"tta"},
	}

	lossless = []string{"flac", "alac", "pcm", "wavpack", "ape", "tta"}
)

// Audit reads the file headers and reports inconsistencies. It never fails: a file whose header neither the
// sniffer nor ffprobe can read is reported as spoofed with an "unreadable header" finding.
func Audit(ctx context.Context, path string) types.MetadataAudit {
	slog.Debug("metadata.Audit", "stage", "start", "path", path)

	result := types.MetadataAudit{
		DeclaredContainer: extensions[strings.ToLower(filepath.Ext(path))],
		Container:         ContainerUnknown,
	}

	data, err := readHead(path)
	if err != nil {
		slog.Debug("metadata.Audit", "stage", "read", "error", err)

		return flag(result, FindingUnreadable)
	}

	hdr, ok := sniff(data)
	result.Container = hdr.container
	result.Codec = hdr.codec
	result.SampleRate = hdr.sampleRate
	result.Channels = hdr.channels
	result.BitDepth = hdr.bitDepth
	result.DeclaredBitrate = hdr.bitrate
	result.DurationSec = hdr.duration

	if ok && hdr.container == ContainerWAV {
		if !readWAV(path, &result) {
			return finalize(flag(result, FindingUnreadable))
		}
	}

	probed, format := enrich(ctx, path, &result)

	if !ok {
		if probed == "" {
			return finalize(flag(result, FindingUnreadable))
		}

		slog.Debug("metadata.Audit", "stage", "ffprobe", "format", format, "codec", probed)

		if result.Container == ContainerUnknown {
			result.Container = probedContainer(format)
		}
	}

	if result.DeclaredContainer != "" && result.DeclaredContainer != result.Container {
		result = flag(result, fmt.Sprintf("extension declares %s but content is %s",
			result.DeclaredContainer, result.Container))
	}

	if probed != "" && result.Codec != "" && codecFamily(probed) != codecFamily(result.Codec) {
		result = flag(result, fmt.Sprintf("header codec %s disagrees with stream codec %s", result.Codec, probed))
	}

	if probed != "" {
		result.Codec = probed
	}

	if allowed, known := containerCodecs[result.Container]; known && result.Codec != "" &&
		!slices.Contains(allowed, codecFamily(result.Codec)) {
		result = flag(result, fmt.Sprintf("codec %s is not expected in a %s container", result.Codec, result.Container))
	}

	if band, known := bitrateBands[codecFamily(result.Codec)]; known && result.DeclaredBitrate > 0 &&
		(result.DeclaredBitrate < band.low || result.DeclaredBitrate > band.high) {
		result = flag(result, fmt.Sprintf("bitrate %d b/s outside the plausible band for %s",
			result.DeclaredBitrate, result.Codec))
	}

	if result.SampleRate != 0 && (result.SampleRate < minSampleRate || result.SampleRate > maxSampleRate) {
		result = flag(result, fmt.Sprintf("sample rate %d Hz out of range", result.SampleRate))
	}

	if result.Channels != 0 && (result.Channels < minChannels || result.Channels > maxChannels) {
		result = flag(result, fmt.Sprintf("channel count %d out of range", result.Channels))
	}

	return finalize(result)
}

func readHead(path string) ([]byte, error) {
	file, err := os.Open(path) //nolint:gosec // auditing user-specified files is the point
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data := make([]byte, headBytes)

	n, err := io.ReadFull(file, data)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF { //nolint:errorlint // io.ReadFull returns these unwrapped
		return nil, err
	}

	if n == 0 {
		return nil, io.ErrUnexpectedEOF
	}

	return data[:n], nil
}

func readWAV(path string, result *types.MetadataAudit) bool {
	file, err := os.Open(path) //nolint:gosec // auditing user-specified files is the point
	if err != nil {
		return false
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return false
	}

	result.SampleRate = int(decoder.SampleRate)
	result.Channels = int(decoder.NumChans)
	result.BitDepth = int(decoder.BitDepth)
	result.DeclaredBitrate = int64(decoder.SampleRate) * int64(decoder.BitDepth) * int64(decoder.NumChans)

	if decoder.WavAudioFormat == 1 || decoder.WavAudioFormat == 0xFFFE {
		result.Codec = "pcm"
	}

	if length, err := decoder.Duration(); err == nil {
		result.DurationSec = length.Seconds()
	}

	return true
}

// enrich fills gaps from ffprobe when available and returns the probed codec and format names.
// Both are empty when ffprobe is missing or cannot read an audio stream.
func enrich(ctx context.Context, path string, result *types.MetadataAudit) (string, string) {
	if _, found := binary.Available("ffprobe"); !found {
		return "", ""
	}

	probe, err := ffprobe.Probe(ctx, path)
	if err != nil {
		slog.Debug("metadata.Audit", "stage", "ffprobe", "error", err)

		return "", ""
	}

	stream, err := probe.FirstAudio()
	if err != nil {
		return "", ""
	}

	if result.SampleRate == 0 {
		result.SampleRate = stream.SampleRateHz()
	}

	if result.Channels == 0 {
		result.Channels = stream.Channels
	}

	if result.BitDepth == 0 {
		result.BitDepth = stream.BitDepth()
	}

	if result.DurationSec == 0 {
		result.DurationSec = probe.DurationSec(stream)
	}

	if result.DeclaredBitrate == 0 {
		result.DeclaredBitrate = probe.BitRate(stream)
	}

	return stream.CodecName, probe.Format.FormatName
}

// codecFamily folds ffprobe codec names onto the names used by the sniffer.
func codecFamily(codec string) string {
	switch {
	case strings.HasPrefix(codec, "pcm"):
		return "pcm"
	case codec == "mp3float":
		return "mp3"
	}

	return codec
}

func flag(result types.MetadataAudit, finding string) types.MetadataAudit {
	result.IsSpoofed = true
	result.Findings = append(result.Findings, finding)

	return result
}

func finalize(result types.MetadataAudit) types.MetadataAudit {
	result.IsLossless = slices.Contains(lossless, codecFamily(result.Codec))

	slog.Debug("metadata.Audit", "stage", "done",
		"container", result.Container, "codec", result.Codec, "spoofed", result.IsSpoofed)

	return result
}
