package reconcile

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
)

// ratioTolerance is how close source and target aspect ratios must be before
// the crop step is skipped entirely.
const ratioTolerance = 0.01

// LoopPlan says how many full repetitions of the source fill the target
// duration before trimming.
type LoopPlan struct {
	Repetitions int
}

// PlanLoop computes the trim/loop strategy: a clip at least as long as the
// target plays once and is trimmed; a shorter clip repeats in full until the
// accumulated duration covers the target.
func PlanLoop(sourceDuration, target float64) LoopPlan {
	if sourceDuration <= 0 || sourceDuration >= target {
		return LoopPlan{Repetitions: 1}
	}
	return LoopPlan{Repetitions: int(math.Ceil(target / sourceDuration))}
}

// FramePlan is the deterministic cover geometry for one asset.
type FramePlan struct {
	ResizeOnly bool
	CropW      int
	CropH      int
	OffsetX    int
	OffsetY    int
}

// FitFrame computes the centered cover crop for a source frame against the
// target dimensions. Matching ratios resize only; otherwise the
// ratio-dominant axis is center-cropped to the target ratio so the final
// resize never letterboxes or distorts.
func FitFrame(srcW, srcH, dstW, dstH int) FramePlan {
	srcRatio := float64(srcW) / float64(srcH)
	dstRatio := float64(dstW) / float64(dstH)

	if math.Abs(srcRatio-dstRatio) < ratioTolerance {
		return FramePlan{ResizeOnly: true, CropW: srcW, CropH: srcH}
	}

	var plan FramePlan
	if srcRatio > dstRatio {
		// Source wider than target: crop width.
		plan.CropW = int(math.Round(float64(srcH) * dstRatio))
		plan.CropH = srcH
	} else {
		// Source taller than target: crop height.
		plan.CropW = srcW
		plan.CropH = int(math.Round(float64(srcW) / dstRatio))
	}
	plan.OffsetX = (srcW - plan.CropW) / 2
	plan.OffsetY = (srcH - plan.CropH) / 2
	return plan
}

// MatchVideoDuration trims or loops the source clip to exactly the target
// duration and enforces the target frame geometry with a cover crop-resize.
func MatchVideoDuration(ctx context.Context, srcPath, outPath string, target float64, dstW, dstH, crf int) error {
	srcDur, err := ProbeDuration(srcPath)
	if err != nil {
		return fmt.Errorf("probe duration: %w", err)
	}
	srcW, srcH, err := ProbeDimensions(srcPath)
	if err != nil {
		return fmt.Errorf("probe dimensions: %w", err)
	}

	loop := PlanLoop(srcDur, target)
	frame := FitFrame(srcW, srcH, dstW, dstH)

	var filters []string
	if !frame.ResizeOnly {
		filters = append(filters, fmt.Sprintf("crop=%d:%d:%d:%d",
			frame.CropW, frame.CropH, frame.OffsetX, frame.OffsetY))
	}
	filters = append(filters, fmt.Sprintf("scale=%d:%d", dstW, dstH), "setsar=1")

	args := []string{"-y"}
	if loop.Repetitions > 1 {
		args = append(args, "-stream_loop", fmt.Sprintf("%d", loop.Repetitions-1))
	}
	args = append(args,
		"-i", srcPath,
		"-t", fmt.Sprintf("%.3f", target),
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", fmt.Sprintf("%d", crf),
		"-pix_fmt", "yuv420p",
		"-an",
		outPath,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg duration match: %w", err)
	}
	return nil
}
