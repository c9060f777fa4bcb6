package metadata_test

import (
	"bytes"
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/farcloser/assay/internal/metadata"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	return path
}

func writeWAV(t *testing.T, name string, rate int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer file.Close()

	data := make([]int, rate*2)
	for i := range rate {
		v := int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		data[2*i], data[2*i+1] = v, v
	}

	enc := wav.NewEncoder(file, rate, 16, 2, 1)
	if err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	if err = enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}

	return path
}

// mpegFrames returns n MPEG-1 layer III frames at 128 kb/s, 44.1 kHz, joint stereo.
func mpegFrames(n int) []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x44})

	return bytes.Repeat(frame, n)
}

func hasFinding(findings []string, substr string) bool {
	for _, f := range findings {
		if strings.Contains(f, substr) {
			return true
		}
	}

	return false
}

func TestMPEGFramesInFLACAreSpoofed(t *testing.T) {
	path := writeFile(t, "track.flac", mpegFrames(40))

	result := metadata.Audit(context.Background(), path)

	if !result.IsSpoofed {
		t.Fatalf("expected spoofed, got %+v", result)
	}

	if result.Container != metadata.ContainerMP3 || result.DeclaredContainer != metadata.ContainerFLAC {
		t.Fatalf("expected mp3 content declared as flac, got %q declared %q", result.Container, result.DeclaredContainer)
	}

	if result.IsLossless {
		t.Fatal("mp3 content must not be reported lossless")
	}

	if result.SampleRate != 44100 || result.DeclaredBitrate != 128000 || result.Channels != 2 {
		t.Fatalf("unexpected frame header fields: %+v", result)
	}

	if !hasFinding(result.Findings, "extension declares flac") {
		t.Fatalf("missing extension finding: %v", result.Findings)
	}
}

func TestMPEGAfterID3(t *testing.T) {
	tag := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 20}
	data := append(append(tag, make([]byte, 20)...), mpegFrames(10)...)

	result := metadata.Audit(context.Background(), writeFile(t, "song.mp3", data))

	if result.Container != metadata.ContainerMP3 || result.DeclaredBitrate != 128000 {
		t.Fatalf("expected mp3 at 128k after the ID3 tag, got %+v", result)
	}

	if hasFinding(result.Findings, "extension") {
		t.Fatalf("unexpected extension finding: %v", result.Findings)
	}
}

func TestCleanWAV(t *testing.T) {
	result := metadata.Audit(context.Background(), writeWAV(t, "clean.wav", 44100))

	if result.IsSpoofed {
		t.Fatalf("clean wav flagged: %v", result.Findings)
	}

	if result.Container != metadata.ContainerWAV || !result.IsLossless {
		t.Fatalf("expected lossless wav, got %+v", result)
	}

	if result.SampleRate != 44100 || result.Channels != 2 || result.BitDepth != 16 {
		t.Fatalf("unexpected format: %+v", result)
	}

	if result.DeclaredBitrate != 44100*16*2 {
		t.Fatalf("unexpected bitrate %d", result.DeclaredBitrate)
	}
}

func TestWAVWithImplausibleRate(t *testing.T) {
	result := metadata.Audit(context.Background(), writeWAV(t, "slow.wav", 4000))

	if !result.IsSpoofed || !hasFinding(result.Findings, "sample rate") {
		t.Fatalf("expected a sample rate finding, got %+v", result)
	}
}

func TestFLACStreamInfo(t *testing.T) {
	info := make([]byte, 34)
	info[10], info[11] = 0x0A, 0xC4
	info[12] = 0x4<<4 | 1<<1 // 44100 Hz high nibble, 2 channels, bps high bit 0
	info[13] = 0xF << 4      // 16 bits per sample, total samples high nibble 0
	copy(info[14:18], []byte{0x00, 0x06, 0xBA, 0xA8})

	data := append([]byte("fLaC\x80\x00\x00\x22"), info...)

	result := metadata.Audit(context.Background(), writeFile(t, "album.flac", data))

	if result.Container != metadata.ContainerFLAC || result.DeclaredContainer != metadata.ContainerFLAC {
		t.Fatalf("expected flac, got %+v", result)
	}

	if result.SampleRate != 44100 || result.Channels != 2 || result.BitDepth != 16 {
		t.Fatalf("unexpected STREAMINFO decode: %+v", result)
	}

	if math.Abs(result.DurationSec-10) > 1e-9 {
		t.Fatalf("expected 10s, got %v", result.DurationSec)
	}

	if !result.IsLossless {
		t.Fatal("flac must be lossless")
	}
}

func TestUnreadableHeader(t *testing.T) {
	result := metadata.Audit(context.Background(), writeFile(t, "noise.mp3", []byte("definitely not audio")))

	if !result.IsSpoofed || !hasFinding(result.Findings, metadata.FindingUnreadable) {
		t.Fatalf("expected unreadable header finding, got %+v", result)
	}
}

func TestLosslessContainersBeyondTheCommonSet(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		magic     []byte
		container string
	}{
		{"wavpack", "take.wv", []byte("wvpk"), metadata.ContainerWavPack},
		{"monkeys audio", "take.ape", []byte("MAC "), metadata.ContainerAPE},
		{"true audio", "take.tta", []byte("TTA1"), metadata.ContainerTTA},
		{"matroska", "take.mka", []byte{0x1A, 0x45, 0xDF, 0xA3}, metadata.ContainerMKV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(append([]byte{}, tt.magic...), make([]byte, 256)...)

			result := metadata.Audit(context.Background(), writeFile(t, tt.file, data))

			if hasFinding(result.Findings, metadata.FindingUnreadable) {
				t.Fatalf("recognized container reported unreadable: %+v", result)
			}

			if result.Container != tt.container || result.DeclaredContainer != tt.container {
				t.Fatalf("expected %s declared %s, got %q declared %q",
					tt.container, tt.container, result.Container, result.DeclaredContainer)
			}

			if result.IsSpoofed {
				t.Fatalf("matching extension flagged: %v", result.Findings)
			}
		})
	}
}

func TestFFprobeRescuesUnknownHeader(t *testing.T) {
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}

	// Core Audio Format has no magic in the sniffer.
	path := filepath.Join(t.TempDir(), "take.caf")

	cmd := exec.Command("ffmpeg", "-v", "quiet", "-nostdin",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=44100:duration=1",
		"-c:a", "pcm_s16be", path)
	if err := cmd.Run(); err != nil {
		t.Skipf("ffmpeg cannot write caf: %v", err)
	}

	result := metadata.Audit(context.Background(), path)

	if result.IsSpoofed {
		t.Fatalf("ffprobe-readable file flagged: %+v", result)
	}

	if result.Container != "caf" || !result.IsLossless {
		t.Fatalf("expected lossless caf from ffprobe, got %+v", result)
	}
}

func TestMissingFileNeverErrors(t *testing.T) {
	result := metadata.Audit(context.Background(), filepath.Join(t.TempDir(), "gone.flac"))

	if !result.IsSpoofed || !hasFinding(result.Findings, metadata.FindingUnreadable) {
		t.Fatalf("expected unreadable header finding, got %+v", result)
	}
}
