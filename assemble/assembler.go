// Package assemble prepares one scene at a time: narration synthesized and
// stretched to the scene length, footage fetched and reconciled to the same
// length, subtitle timing computed. The renderer takes it from there.
package assemble

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/reconcile"
	"shortvid-pipeline/tts"
	"shortvid-pipeline/types"
)

// TTSProvider synthesizes narration.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string) (*tts.Speech, error)
}

// StockProvider downloads stock footage for a search query.
type StockProvider interface {
	Find(ctx context.Context, query string, orientation types.Orientation, destPath string) error
}

// AIVideoProvider generates footage from a prompt.
type AIVideoProvider interface {
	Generate(ctx context.Context, prompt string, orientation types.Orientation, destPath string) error
}

// Assembler builds SceneBundles from authored scenes. Safe for use from
// concurrent tasks.
type Assembler struct {
	cfg     *config.Config
	tts     TTSProvider
	stock   StockProvider
	aivideo AIVideoProvider
	log     zerolog.Logger
}

func New(cfg *config.Config, tts TTSProvider, stock StockProvider, aivideo AIVideoProvider, log zerolog.Logger) *Assembler {
	return &Assembler{
		cfg:     cfg,
		tts:     tts,
		stock:   stock,
		aivideo: aivideo,
		log:     log.With().Str("comp", "assemble").Logger(),
	}
}

// BuildScene produces the fully reconciled bundle for one scene. The audio is
// reconciled first and its exact duration becomes the scene's real length; the
// footage is then matched to that, so the two can never drift apart.
func (a *Assembler) BuildScene(ctx context.Context, scene types.Scene, orientation types.Orientation, workDir string) (types.SceneBundle, error) {
	var bundle types.SceneBundle

	speech, err := a.tts.Synthesize(ctx, scene.VoiceoverText)
	if err != nil {
		return bundle, fmt.Errorf("scene %d narration: %w", scene.SceneNumber, err)
	}

	audioPath := filepath.Join(workDir, fmt.Sprintf("scene_%02d.wav", scene.SceneNumber))
	duration, err := reconcile.MatchAudioDuration(speech.PCM, speech.SampleRate,
		scene.VoiceoverText, scene.DurationSeconds, audioPath, a.log)
	if err != nil {
		return bundle, fmt.Errorf("scene %d audio reconcile: %w", scene.SceneNumber, err)
	}

	rawPath := filepath.Join(workDir, fmt.Sprintf("scene_%02d_raw.mp4", scene.SceneNumber))
	switch scene.MediaSource {
	case types.MediaAIGenerated:
		err = a.aivideo.Generate(ctx, scene.VisualPrompt, orientation, rawPath)
	default:
		err = a.stock.Find(ctx, scene.VisualPrompt, orientation, rawPath)
	}
	if err != nil {
		return bundle, fmt.Errorf("scene %d footage: %w", scene.SceneNumber, err)
	}

	width, height := orientation.FrameSize()
	videoPath := filepath.Join(workDir, fmt.Sprintf("scene_%02d.mp4", scene.SceneNumber))
	if err := reconcile.MatchVideoDuration(ctx, rawPath, videoPath, duration,
		width, height, a.cfg.Video.CRF); err != nil {
		return bundle, fmt.Errorf("scene %d video reconcile: %w", scene.SceneNumber, err)
	}

	bundle = types.SceneBundle{
		SceneNumber: scene.SceneNumber,
		AudioPath:   audioPath,
		VideoPath:   videoPath,
		Duration:    duration,
		Subtitles: ChunkSubtitles(scene.VoiceoverText, duration,
			a.cfg.Video.ChunkMinWord, a.cfg.Video.ChunkMaxWord,
			rand.New(rand.NewSource(rand.Int63()))),
	}
	a.log.Info().Int("scene", scene.SceneNumber).Float64("duration", duration).
		Int("subtitle_chunks", len(bundle.Subtitles)).Msg("scene assembled")
	return bundle, nil
}

// ChunkSubtitles splits narration into randomly sized word groups and assigns
// each a slice of the scene proportional to its word count. Chunks tile the
// scene exactly: offsets are sequential and durations sum to sceneDuration.
func ChunkSubtitles(text string, sceneDuration float64, minWords, maxWords int, rnd *rand.Rand) []types.SubtitleChunk {
	words := strings.Fields(text)
	if len(words) == 0 || sceneDuration <= 0 {
		return nil
	}
	if minWords < 1 {
		minWords = 1
	}
	if maxWords < minWords {
		maxWords = minWords
	}

	var groups [][]string
	for i := 0; i < len(words); {
		n := minWords
		if spread := maxWords - minWords; spread > 0 {
			n += rnd.Intn(spread + 1)
		}
		if i+n > len(words) {
			n = len(words) - i
		}
		groups = append(groups, words[i:i+n])
		i += n
	}

	perWord := sceneDuration / float64(len(words))
	chunks := make([]types.SubtitleChunk, 0, len(groups))
	offset := 0.0
	for _, g := range groups {
		dur := float64(len(g)) * perWord
		chunks = append(chunks, types.SubtitleChunk{
			Text:        strings.Join(g, " "),
			StartOffset: offset,
			Duration:    dur,
		})
		offset += dur
	}
	return chunks
}
