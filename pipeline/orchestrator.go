// Package pipeline runs the end-to-end generation flow for one task: author a
// script, validate it, build each scene, render, and publish the result into
// the task store. One goroutine per task; scenes run sequentially because the
// providers behind them are quota-bound anyway.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/scriptcheck"
	"shortvid-pipeline/taskstore"
	"shortvid-pipeline/types"
)

// ScriptAuthor produces a scene-by-scene script from a user prompt.
type ScriptAuthor interface {
	Generate(ctx context.Context, prompt string, totalSeconds float64) (*types.Script, error)
}

// SceneAssembler turns one authored scene into a reconciled bundle.
type SceneAssembler interface {
	BuildScene(ctx context.Context, scene types.Scene, orientation types.Orientation, workDir string) (types.SceneBundle, error)
}

// Renderer is the ffmpeg surface the orchestrator drives.
type Renderer interface {
	ComposeScene(ctx context.Context, bundle types.SceneBundle, orientation types.Orientation, workDir string) (string, error)
	Concatenate(ctx context.Context, scenePaths []string, workDir string) (string, error)
	MixMusic(ctx context.Context, videoPath, musicPath, workDir string) (string, error)
	Finalize(ctx context.Context, srcPath, destPath string) error
}

// MusicFinder locates an optional background track. An empty path with a nil
// error means render without music.
type MusicFinder interface {
	Find(ctx context.Context, keywords []string, targetDuration float64, destDir string) (string, error)
}

// Orchestrator owns task lifecycles.
type Orchestrator struct {
	cfg       *config.Config
	store     taskstore.Store
	author    ScriptAuthor
	assembler SceneAssembler
	renderer  Renderer
	music     MusicFinder
	log       zerolog.Logger
}

func New(cfg *config.Config, store taskstore.Store, author ScriptAuthor, assembler SceneAssembler, renderer Renderer, music MusicFinder, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     store,
		author:    author,
		assembler: assembler,
		renderer:  renderer,
		music:     music,
		log:       log.With().Str("comp", "pipeline").Logger(),
	}
}

// Submit registers a task and starts generation in the background. It returns
// immediately with the task ID.
func (o *Orchestrator) Submit(prompt string, totalSeconds float64, orientation types.Orientation) string {
	id := uuid.NewString()
	o.store.Put(types.Task{
		ID:      id,
		Status:  types.StatusPending,
		Message: "task accepted",
	})
	go o.run(id, prompt, totalSeconds, orientation)
	return id
}

func (o *Orchestrator) run(id, prompt string, totalSeconds float64, orientation types.Orientation) {
	log := o.log.With().Str("task", id).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("task panicked")
			o.fail(id, fmt.Errorf("internal error: %v", r))
		}
	}()

	ctx := context.Background()

	o.transition(id, types.StatusGeneratingScript, "authoring script")
	script, err := o.author.Generate(ctx, prompt, totalSeconds)
	if err != nil {
		o.fail(id, fmt.Errorf("author script: %w", err))
		return
	}
	if err := scriptcheck.Check(script, totalSeconds, o.cfg.Script.TotalDriftSec, log); err != nil {
		o.fail(id, fmt.Errorf("validate script: %w", err))
		return
	}
	log.Info().Str("title", script.Title).Int("scenes", len(script.Scenes)).Msg("script ready")

	workDir := filepath.Join(o.cfg.Paths.WorkDir, id)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		o.fail(id, fmt.Errorf("create work dir: %w", err))
		return
	}

	o.transition(id, types.StatusGeneratingVideo, "building scenes")
	scenePaths := make([]string, 0, len(script.Scenes))
	for _, scene := range script.Scenes {
		bundle, err := o.assembler.BuildScene(ctx, scene, orientation, workDir)
		if err != nil {
			o.fail(id, err)
			return
		}
		styled, err := o.renderer.ComposeScene(ctx, bundle, orientation, workDir)
		if err != nil {
			o.fail(id, err)
			return
		}
		scenePaths = append(scenePaths, styled)
	}

	joined, err := o.renderer.Concatenate(ctx, scenePaths, workDir)
	if err != nil {
		o.fail(id, err)
		return
	}

	if musicPath, err := o.music.Find(ctx, script.BackgroundMusicKeywords,
		script.TotalDuration(), workDir); err != nil {
		log.Warn().Err(err).Msg("music lookup failed, continuing without background music")
	} else if musicPath != "" {
		withMusic, err := o.renderer.MixMusic(ctx, joined, musicPath, workDir)
		if err != nil {
			o.fail(id, err)
			return
		}
		joined = withMusic
	}

	finalPath := filepath.Join(workDir, "final_video.mp4")
	if err := o.renderer.Finalize(ctx, joined, finalPath); err != nil {
		o.fail(id, err)
		return
	}

	o.store.Put(types.Task{
		ID:         id,
		Status:     types.StatusComplete,
		Message:    "video ready",
		ResultPath: finalPath,
	})
	log.Info().Str("path", finalPath).Msg("task complete")
}

func (o *Orchestrator) transition(id string, status types.TaskStatus, message string) {
	o.store.Put(types.Task{ID: id, Status: status, Message: message})
}

func (o *Orchestrator) fail(id string, err error) {
	o.log.Error().Str("task", id).Err(err).Msg("task failed")
	o.store.Put(types.Task{
		ID:      id,
		Status:  types.StatusError,
		Message: err.Error(),
	})
}
