package scriptcheck

import (
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"shortvid-pipeline/faults"
	"shortvid-pipeline/types"
)

func stockScene(n int, dur float64) types.Scene {
	return types.Scene{
		SceneNumber:     n,
		MediaSource:     types.MediaStock,
		VisualPrompt:    "city street",
		VoiceoverText:   "some narration here for this scene",
		DurationSeconds: dur,
	}
}

func TestCheckAcceptsValidScript(t *testing.T) {
	script := &types.Script{Scenes: []types.Scene{
		stockScene(1, 4), stockScene(2, 5), stockScene(3, 6),
	}}
	if err := Check(script, 15, 0.5, zerolog.Nop()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if script.Scenes[2].DurationSeconds != 6 {
		t.Fatalf("in-tolerance script was repaired: %+v", script.Scenes)
	}
}

func TestCheckRejectsOutOfRangeScene(t *testing.T) {
	script := &types.Script{Scenes: []types.Scene{
		stockScene(1, 4),
		{SceneNumber: 2, MediaSource: types.MediaAIGenerated, DurationSeconds: 3, VoiceoverText: "x"},
	}}
	err := Check(script, 7, 0.5, zerolog.Nop())
	var durErr *faults.InvalidScriptDurationError
	if !errors.As(err, &durErr) {
		t.Fatalf("expected InvalidScriptDurationError, got %v", err)
	}
	if durErr.SceneNumber != 2 || durErr.Min != 4 || durErr.Max != 6 {
		t.Fatalf("wrong scene flagged: %+v", durErr)
	}
}

func TestCheckRepairsLastSceneOnly(t *testing.T) {
	// Four 6s scenes sum to 24 against a 20s request: only the last scene
	// shrinks, to 2s, which is still inside stock bounds.
	script := &types.Script{Scenes: []types.Scene{
		stockScene(1, 6), stockScene(2, 6), stockScene(3, 6), stockScene(4, 6),
	}}
	if err := Check(script, 20, 0.5, zerolog.Nop()); err != nil {
		t.Fatalf("check: %v", err)
	}
	for i := 0; i < 3; i++ {
		if script.Scenes[i].DurationSeconds != 6 {
			t.Fatalf("scene %d was touched: %+v", i+1, script.Scenes[i])
		}
	}
	if got := script.Scenes[3].DurationSeconds; math.Abs(got-2) > 1e-9 {
		t.Fatalf("last scene = %.2fs, want 2.00", got)
	}
	if got := script.TotalDuration(); math.Abs(got-20) > 1e-9 {
		t.Fatalf("total = %.2fs, want 20.00", got)
	}

	// Re-running on a repaired script is a no-op.
	if err := Check(script, 20, 0.5, zerolog.Nop()); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if got := script.Scenes[3].DurationSeconds; math.Abs(got-2) > 1e-9 {
		t.Fatalf("second check changed the last scene: %.2fs", got)
	}
}

func TestCheckRepairsUpward(t *testing.T) {
	script := &types.Script{Scenes: []types.Scene{
		stockScene(1, 3), stockScene(2, 3),
	}}
	if err := Check(script, 8, 0.5, zerolog.Nop()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if got := script.Scenes[1].DurationSeconds; math.Abs(got-5) > 1e-9 {
		t.Fatalf("last scene = %.2fs, want 5.00", got)
	}
}

func TestCheckDriftWithinToleranceUntouched(t *testing.T) {
	script := &types.Script{Scenes: []types.Scene{
		stockScene(1, 5), stockScene(2, 5.4),
	}}
	if err := Check(script, 10, 0.5, zerolog.Nop()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if script.Scenes[1].DurationSeconds != 5.4 {
		t.Fatalf("0.4s drift inside 0.5s tolerance was repaired: %+v", script.Scenes)
	}
}

func TestCheckRepairMayLeaveBounds(t *testing.T) {
	// Drift larger than the last scene can absorb: repair still happens
	// (with a warning), the result is literal, not clamped.
	script := &types.Script{Scenes: []types.Scene{
		stockScene(1, 6), stockScene(2, 3),
	}}
	if err := Check(script, 4, 0.5, zerolog.Nop()); err != nil {
		t.Fatalf("check: %v", err)
	}
	if got := script.Scenes[1].DurationSeconds; math.Abs(got+2) > 1e-9 {
		t.Fatalf("last scene = %.2fs, want -2.00 (literal repair)", got)
	}
}
