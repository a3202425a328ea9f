// Package render drives ffmpeg to turn prepared scene bundles into the final
// deliverable: styled scenes with burned-in subtitles, concatenated, with an
// optional background music bed.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/types"
)

// Engine renders with the system ffmpeg binary.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: log.With().Str("comp", "render").Logger()}
}

// ComposeScene styles one scene and muxes its narration: slow zoom, contrast
// and darken grade, subtitle chunks burned in, scene audio attached. Returns
// the path of the rendered scene clip.
func (e *Engine) ComposeScene(ctx context.Context, bundle types.SceneBundle, orientation types.Orientation, workDir string) (string, error) {
	width, height := orientation.FrameSize()
	outFile := filepath.Join(workDir, fmt.Sprintf("scene_%02d_styled.mp4", bundle.SceneNumber))

	filters := []string{
		e.zoomFilter(bundle.Duration, width, height),
		fmt.Sprintf("eq=contrast=%.2f", e.cfg.Video.Contrast),
		fmt.Sprintf("colorchannelmixer=rr=%.2f:gg=%.2f:bb=%.2f",
			e.cfg.Video.Darken, e.cfg.Video.Darken, e.cfg.Video.Darken),
	}
	filters = append(filters, e.subtitleFilters(bundle.Subtitles)...)

	args := []string{"-y",
		"-i", bundle.VideoPath,
		"-i", bundle.AudioPath,
		"-vf", strings.Join(filters, ","),
		"-map", "0:v", "-map", "1:a",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", fmt.Sprintf("%d", e.cfg.Video.CRF),
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", e.cfg.Video.FPS),
		"-c:a", "aac",
		"-t", fmt.Sprintf("%.3f", bundle.Duration),
		outFile,
	}
	if err := e.runFFmpeg(ctx, args...); err != nil {
		return "", fmt.Errorf("compose scene %d: %w", bundle.SceneNumber, err)
	}
	return outFile, nil
}

// zoomFilter zooms in by the configured ratio over the scene duration.
func (e *Engine) zoomFilter(duration float64, width, height int) string {
	frames := int(duration * float64(e.cfg.Video.FPS))
	if frames < 1 {
		frames = 1
	}
	return fmt.Sprintf(
		"zoompan=z='min(1+%.3f*on/%d,%.3f)':d=1:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d:fps=%d",
		e.cfg.Video.ZoomRatio, frames, 1+e.cfg.Video.ZoomRatio, width, height, e.cfg.Video.FPS)
}

// subtitleFilters produces one drawtext per chunk, each gated to its window.
func (e *Engine) subtitleFilters(chunks []types.SubtitleChunk) []string {
	filters := make([]string, 0, len(chunks))
	for _, c := range chunks {
		start := c.StartOffset
		end := c.StartOffset + c.Duration
		filters = append(filters, fmt.Sprintf(
			"drawtext=text='%s':fontsize=%d:fontcolor=white:borderw=%d:bordercolor=black:x=(w-text_w)/2:y=(h-text_h)/2:enable='between(t,%.3f,%.3f)'",
			escapeText(strings.ToUpper(c.Text)), e.cfg.Video.FontSize, e.cfg.Video.StrokeWidth, start, end))
	}
	return filters
}

// Concatenate joins styled scene clips in order using the concat demuxer.
// Scenes share an identical encode so streams are copied, not re-encoded.
func (e *Engine) Concatenate(ctx context.Context, scenePaths []string, workDir string) (string, error) {
	if len(scenePaths) == 0 {
		return "", fmt.Errorf("no scenes to concatenate")
	}

	listFile := filepath.Join(workDir, "scenes_concat.txt")
	var lines []string
	for _, p := range scenePaths {
		lines = append(lines, fmt.Sprintf("file '%s'", p))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return "", err
	}

	outFile := filepath.Join(workDir, "scenes_joined.mp4")
	err := e.runFFmpeg(ctx, "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		outFile,
	)
	if err != nil {
		return "", fmt.Errorf("concatenate scenes: %w", err)
	}
	return outFile, nil
}

// MixMusic lays a looped background track under the narration at the
// configured volume. Narration length wins.
func (e *Engine) MixMusic(ctx context.Context, videoPath, musicPath, workDir string) (string, error) {
	outFile := filepath.Join(workDir, "with_music.mp4")
	filter := fmt.Sprintf(
		"[1:a]volume=%.2f[music];[0:a][music]amix=inputs=2:duration=first:normalize=0[aout]",
		e.cfg.Video.MusicVolume)

	err := e.runFFmpeg(ctx, "-y",
		"-i", videoPath,
		"-stream_loop", "-1",
		"-i", musicPath,
		"-filter_complex", filter,
		"-map", "0:v", "-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		outFile,
	)
	if err != nil {
		return "", fmt.Errorf("mix music: %w", err)
	}
	return outFile, nil
}

// Finalize writes the deliverable: video stream copied, audio normalized to
// 192k AAC, moov atom up front for streaming.
func (e *Engine) Finalize(ctx context.Context, srcPath, destPath string) error {
	err := e.runFFmpeg(ctx, "-y",
		"-i", srcPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		destPath,
	)
	if err != nil {
		return fmt.Errorf("finalize video: %w", err)
	}
	return nil
}

func (e *Engine) runFFmpeg(ctx context.Context, args ...string) error {
	e.log.Debug().Strs("args", args).Msg("ffmpeg")
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 400))
	}
	return nil
}

// escapeText makes a string safe inside a single-quoted drawtext argument.
func escapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\\\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
