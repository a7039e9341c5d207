package fpsstats

import (
	"fmt"
	"math"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a
	// fraction of mean FPS. 30 FPS mean is stable below 4.5 FPS stddev.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of
	// the expected interval. 30 FPS (33ms) is stable below 6.6ms jitter.
	jitterStabilityThreshold = 0.20

	// minStableSamples is the number of intervals needed before a cadence
	// can be called stable.
	minStableSamples = 3
)

// Stats summarizes the frame cadence over a set of inter-frame intervals.
type Stats struct {
	Samples      int     // intervals used
	FPSMean      float64 // samples / total interval time
	FPSStdDev    float64 // stddev of instantaneous FPS around FPSMean
	FPSMin       float64
	FPSMax       float64
	JitterMean   float64 // seconds, |interval - expected interval|
	JitterStdDev float64 // seconds
	JitterMax    float64 // seconds
	IsStable     bool

	MissingFrames uint64 // sum of gap notices in the window period
	Resyncs       uint64
	Anomalies     uint64 // detailed decisions other than always_show
}

// String renders a one-line cadence summary.
func (s Stats) String() string {
	if s.Samples == 0 {
		return fmt.Sprintf("fps=? samples=0 missing=%d resyncs=%d anomalies=%d",
			s.MissingFrames, s.Resyncs, s.Anomalies)
	}
	return fmt.Sprintf("fps=%.2f stddev=%.2f min=%.2f max=%.2f jitter=%.1fms stable=%v samples=%d missing=%d resyncs=%d anomalies=%d",
		s.FPSMean, s.FPSStdDev, s.FPSMin, s.FPSMax,
		s.JitterMean*1000, s.IsStable, s.Samples,
		s.MissingFrames, s.Resyncs, s.Anomalies)
}

// Calculate computes cadence statistics from inter-frame intervals in
// seconds. Non-positive intervals are ignored.
//
// Stability requires:
//   - FPS stddev < 15% of mean FPS
//   - mean jitter < 20% of the expected interval
//   - at least three intervals
func Calculate(intervals []float64) Stats {
	valid := make([]float64, 0, len(intervals))
	var total float64
	for _, iv := range intervals {
		if iv > 0 {
			valid = append(valid, iv)
			total += iv
		}
	}

	n := len(valid)
	if n == 0 {
		return Stats{}
	}

	fpsMean := float64(n) / total
	expectedInterval := total / float64(n)

	fpsMin, fpsMax := math.Inf(1), 0.0
	var fpsSumSquares, jitterSum, jitterMax float64
	jitters := make([]float64, n)
	for i, iv := range valid {
		fps := 1.0 / iv
		if fps < fpsMin {
			fpsMin = fps
		}
		if fps > fpsMax {
			fpsMax = fps
		}
		diff := fps - fpsMean
		fpsSumSquares += diff * diff

		j := math.Abs(iv - expectedInterval)
		jitters[i] = j
		jitterSum += j
		if j > jitterMax {
			jitterMax = j
		}
	}
	fpsStdDev := math.Sqrt(fpsSumSquares / float64(n))
	jitterMean := jitterSum / float64(n)

	var jitterSumSquares float64
	for _, j := range jitters {
		diff := j - jitterMean
		jitterSumSquares += diff * diff
	}
	jitterStdDev := math.Sqrt(jitterSumSquares / float64(n))

	fpsStable := fpsStdDev < fpsMean*fpsStabilityThreshold
	jitterStable := jitterMean < expectedInterval*jitterStabilityThreshold

	return Stats{
		Samples:      n,
		FPSMean:      fpsMean,
		FPSStdDev:    fpsStdDev,
		FPSMin:       fpsMin,
		FPSMax:       fpsMax,
		JitterMean:   jitterMean,
		JitterStdDev: jitterStdDev,
		JitterMax:    jitterMax,
		IsStable:     n >= minStableSamples && fpsStable && jitterStable,
	}
}
