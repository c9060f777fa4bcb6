// Package spectral inspects the averaged short-time spectrum for band-limiting and aliasing left by lossy
// encoders and resamplers.
package spectral

import (
	"math"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/farcloser/assay/internal/types"
)

const (
	maxFrames = 512

	rolloffEnergy  = 0.95
	rolloffSuspect = 0.95 // fraction of Nyquist

	// Brickwall edge detection.
	edgeWindowDb   = 50.0  // content within this of the reference level counts as present
	edgeDropDb     = 30.0  // minimum drop across the edge
	edgeSpanHz     = 500.0 // width over which the drop is measured
	edgeNyquistMax = 0.98  // an "edge" this close to Nyquist is just the end of the band

	powerFloor = 1e-20
)

var transcodeCutoffs = []struct { //nolint:gochecknoglobals // lookup table
	freq  float64
	codec string
}{
	{11000, "MP3 64"},
	{15500, "AAC 128"},
	{16000, "MP3 128"},
	{17500, "MP3 160"},
	{18000, "MP3 192 / AAC 192"},
	{19000, "MP3 256 / AAC 256"},
	{20000, "MP3 320"},
	{20500, "Opus 128"},
}

// Audit computes the averaged power spectrum of a segment's mono mix and derives roll-off, brickwall edge and
// aliasing measurements from it.
func Audit(seg *types.Segment) types.SpectralMetrics {
	profile := Profile(seg.SampleRate)
	nyquist := float64(seg.SampleRate) / 2

	result := types.SpectralMetrics{NyquistHz: nyquist, Profile: profile}

	mono := seg.Mono()
	if len(mono) == 0 || seg.SampleRate <= 0 {
		return result
	}

	power, frames := averagePower(mono, profile)
	result.Profile.Frames = frames

	binHz := float64(seg.SampleRate) / float64(profile.WindowSize)
	magDb := toDb(power)
	refLevel := bandAverage(magDb, 1000, 10000, binHz)

	result.RolloffHz = rolloff(power, binHz)
	result.RolloffSuspect = result.RolloffHz < rolloffSuspect*nyquist
	result.CutoffHz, result.CutoffSharpnessDb = detectBrickWall(magDb, binHz, nyquist, refLevel)
	result.AliasingScore = aliasing(power)

	if result.CutoffHz > 0 {
		result.LikelyCodec = likelyCodec(result.CutoffHz)
	}

	return result
}

// Aggregate keeps the worst value of each measurement: lowest roll-off, lowest edge, highest aliasing.
func Aggregate(results []types.SpectralMetrics) types.SpectralMetrics {
	if len(results) == 0 {
		return types.SpectralMetrics{}
	}

	agg := results[0]

	for _, res := range results[1:] {
		if res.Profile.Frames == 0 {
			continue
		}

		if agg.Profile.Frames == 0 || res.RolloffHz < agg.RolloffHz {
			agg.RolloffHz = res.RolloffHz
			agg.RolloffSuspect = res.RolloffSuspect
		}

		if res.CutoffHz > 0 && (agg.CutoffHz == 0 || res.CutoffHz < agg.CutoffHz) {
			agg.CutoffHz = res.CutoffHz
			agg.CutoffSharpnessDb = res.CutoffSharpnessDb
			agg.LikelyCodec = res.LikelyCodec
		}

		agg.AliasingScore = max(agg.AliasingScore, res.AliasingScore)
		agg.Profile.Frames += res.Profile.Frames
	}

	return agg
}

// averagePower returns the mean windowed power spectrum over at most maxFrames evenly spaced frames.
func averagePower(samples []float64, profile types.STFTProfile) ([]float64, int) {
	size := profile.WindowSize
	positions := windowPositions(len(samples), size, profile.HopSize)

	win := window.Hann(size)
	fft := fourier.NewFFT(size)
	fftIn := make([]float64, size)
	coeffs := make([]complex128, size/2+1)
	power := make([]float64, size/2+1)

	for _, pos := range positions {
		clear(fftIn)

		end := min(pos+size, len(samples))
		for i := pos; i < end; i++ {
			fftIn[i-pos] = samples[i] * win[i-pos]
		}

		coeffs = fft.Coefficients(coeffs, fftIn)
		for i, c := range coeffs {
			power[i] += real(c)*real(c) + imag(c)*imag(c)
		}
	}

	scale := 1 / float64(len(positions))
	for i := range power {
		power[i] *= scale
	}

	return power, len(positions)
}

// windowPositions returns frame start offsets: every hop, thinned to maxFrames evenly spaced frames.
// A signal shorter than one window yields a single zero-padded frame.
func windowPositions(total, size, hop int) []int {
	if total <= size || hop <= 0 {
		return []int{0}
	}

	count := (total-size)/hop + 1
	if count <= maxFrames {
		positions := make([]int, count)
		for i := range positions {
			positions[i] = i * hop
		}

		return positions
	}

	positions := make([]int, maxFrames)
	step := float64(count-1) / float64(maxFrames-1)

	for i := range positions {
		positions[i] = int(math.Round(float64(i)*step)) * hop
	}

	return positions
}

func toDb(power []float64) []float64 {
	db := make([]float64, len(power))
	for i, p := range power {
		db[i] = 10 * math.Log10(max(p, powerFloor))
	}

	return db
}

func bandAverage(magDb []float64, startHz, endHz, binHz float64) float64 {
	startBin := max(int(startHz/binHz), 0)
	endBin := min(int(endHz/binHz), len(magDb)-1)

	if startBin > endBin {
		return 10 * math.Log10(powerFloor)
	}

	var sum float64
	for i := startBin; i <= endBin; i++ {
		sum += magDb[i]
	}

	return sum / float64(endBin-startBin+1)
}

// rolloff returns the frequency below which rolloffEnergy of the power lies.
func rolloff(power []float64, binHz float64) float64 {
	var total float64
	for _, p := range power {
		total += p
	}

	if total <= 0 {
		return 0
	}

	var cumulative float64

	for i, p := range power {
		cumulative += p
		if cumulative >= rolloffEnergy*total {
			return float64(i) * binHz
		}
	}

	return float64(len(power)-1) * binHz
}

// detectBrickWall finds the highest frequency still carrying content within edgeWindowDb of the reference level
// and reports it as a cutoff when the level falls by at least edgeDropDb across edgeSpanHz above it.
func detectBrickWall(magDb []float64, binHz, nyquist, refLevel float64) (cutoff, drop float64) {
	threshold := refLevel - edgeWindowDb
	edge := -1

	for i := len(magDb) - 1; i > 0; i-- {
		if magDb[i] >= threshold {
			edge = i
			break
		}
	}

	if edge <= 0 {
		return 0, 0
	}

	edgeHz := float64(edge) * binHz
	if edgeHz >= edgeNyquistMax*nyquist {
		return 0, 0
	}

	below := bandAverage(magDb, edgeHz-edgeSpanHz, edgeHz, binHz)
	above := bandAverage(magDb, edgeHz+binHz, edgeHz+edgeSpanHz, binHz)
	drop = below - above

	if drop < edgeDropDb {
		return 0, 0
	}

	return edgeHz, drop
}

// aliasing compares the top 5% of the band to the 20-40% band. Band-limited material scores near zero.
func aliasing(power []float64) float64 {
	bins := len(power)
	if bins < 20 {
		return 0
	}

	high := meanOf(power[bins*95/100:])
	reference := meanOf(power[bins*20/100 : bins*40/100])

	if reference <= powerFloor {
		return 0
	}

	return high / reference
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func likelyCodec(cutoff float64) string {
	best := ""
	bestDistance := 750.0

	for _, tc := range transcodeCutoffs {
		if d := math.Abs(tc.freq - cutoff); d < bestDistance {
			best = tc.codec
			bestDistance = d
		}
	}

	return best
}
