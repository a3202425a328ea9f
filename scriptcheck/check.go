// Package scriptcheck validates and repairs authored scripts before any
// provider money is spent on them.
package scriptcheck

import (
	"strings"

	"github.com/rs/zerolog"

	"shortvid-pipeline/faults"
	"shortvid-pipeline/types"
)

// Advisory pacing bounds in words per second. Violations are logged, never
// fatal: the audio reconciliation step absorbs moderate pacing drift.
const (
	minWordsPerSecond = 1.8
	maxWordsPerSecond = 2.1
)

// Check validates every scene against its media-source duration bounds and
// repairs total-duration drift by adjusting the last scene. requestedTotal is
// what the user asked for; driftTolerance is how far the scene sum may stray
// before repair kicks in.
func Check(script *types.Script, requestedTotal, driftTolerance float64, log zerolog.Logger) error {
	for _, sc := range script.Scenes {
		min, max := sc.MediaSource.DurationBounds()
		if sc.DurationSeconds < min || sc.DurationSeconds > max {
			return &faults.InvalidScriptDurationError{
				SceneNumber: sc.SceneNumber,
				Min:         min,
				Max:         max,
				Actual:      sc.DurationSeconds,
			}
		}
	}

	total := script.TotalDuration()
	drift := total - requestedTotal
	if drift > driftTolerance || drift < -driftTolerance {
		last := &script.Scenes[len(script.Scenes)-1]
		repaired := last.DurationSeconds - drift
		min, max := last.MediaSource.DurationBounds()
		if repaired < min || repaired > max {
			log.Warn().
				Int("scene", last.SceneNumber).
				Float64("repaired_sec", repaired).
				Float64("min", min).Float64("max", max).
				Msg("last-scene repair leaves duration outside source bounds")
		}
		log.Info().
			Float64("authored_total", total).
			Float64("requested_total", requestedTotal).
			Int("scene", last.SceneNumber).
			Float64("from_sec", last.DurationSeconds).
			Float64("to_sec", repaired).
			Msg("repairing total duration drift on last scene")
		last.DurationSeconds = repaired
	}

	for _, sc := range script.Scenes {
		if sc.DurationSeconds <= 0 {
			continue
		}
		wps := float64(countWords(sc.VoiceoverText)) / sc.DurationSeconds
		if wps < minWordsPerSecond || wps > maxWordsPerSecond {
			log.Debug().
				Int("scene", sc.SceneNumber).
				Float64("words_per_sec", wps).
				Msg("voiceover pacing outside advisory range")
		}
	}
	return nil
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
