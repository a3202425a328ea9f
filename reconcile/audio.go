// Package reconcile forces generated assets to exact target durations: audio
// by uniform time-scaling (never truncation), video by trim/loop plus a
// deterministic cover crop.
package reconcile

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
)

// referenceWordsPerSecond is the natural narration pace the script author is
// instructed to target.
const referenceWordsPerSecond = 1.95

// fineTuneThreshold is the residual drift (seconds) that triggers a second
// resample pass.
const fineTuneThreshold = 0.05

// EstimateSpeed returns the coarse speed factor the narration would need to
// fit the target duration at the reference pace, clamped to [0.7, 1.5].
// Diagnostic only; the actual correction is the sample-exact resample below.
func EstimateSpeed(text string, target float64) float64 {
	if target <= 0 {
		return 1.0
	}
	words := len(strings.Fields(text))
	natural := float64(words) / referenceWordsPerSecond
	speed := natural / target
	if speed < 0.7 {
		speed = 0.7
	} else if speed > 1.5 {
		speed = 1.5
	}
	return speed
}

// Resample stretches samples to exactly targetLen using linear interpolation.
// Every input sample contributes to the output: content is time-scaled, never
// cut.
func Resample(samples []float64, targetLen int) []float64 {
	if targetLen <= 0 {
		return nil
	}
	out := make([]float64, targetLen)
	if len(samples) == 0 {
		return out
	}
	if targetLen == 1 || len(samples) == 1 {
		for i := range out {
			out[i] = samples[0]
		}
		return out
	}
	step := float64(len(samples)-1) / float64(targetLen-1)
	for i := range out {
		pos := float64(i) * step
		lo := int(pos)
		if lo >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = samples[lo]*(1-frac) + samples[lo+1]*frac
	}
	return out
}

// MatchAudioDuration resamples raw mono PCM to exactly the target duration
// and writes the result as a WAV file. Returns the emitted duration, which is
// within 0.01s of target.
func MatchAudioDuration(pcm []byte, sampleRate int, text string, target float64, outPath string, log zerolog.Logger) (float64, error) {
	if target <= 0 {
		return 0, fmt.Errorf("target duration must be positive, got %.3f", target)
	}
	if sampleRate <= 0 {
		return 0, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	samples := DecodePCM16(pcm)
	if len(samples) == 0 {
		return 0, fmt.Errorf("empty audio payload")
	}

	rawDuration := float64(len(samples)) / float64(sampleRate)
	log.Debug().
		Float64("raw_sec", rawDuration).
		Float64("target_sec", target).
		Float64("expected_speed", EstimateSpeed(text, target)).
		Msg("matching audio duration")

	targetSamples := int(math.Round(target * float64(sampleRate)))
	out := Resample(samples, targetSamples)

	// Rounding residue pass, correction clamped to ±5% speed change.
	if got := float64(len(out)) / float64(sampleRate); math.Abs(got-target) > fineTuneThreshold {
		factor := target / got
		if factor < 0.95 {
			factor = 0.95
		} else if factor > 1.05 {
			factor = 1.05
		}
		out = Resample(out, int(math.Round(float64(len(out))*factor)))
		log.Debug().Float64("factor", factor).Msg("fine-tuned audio duration")
	}

	if err := WriteWAV(outPath, EncodePCM16(out), sampleRate, 1); err != nil {
		return 0, fmt.Errorf("write wav: %w", err)
	}
	return float64(len(out)) / float64(sampleRate), nil
}
