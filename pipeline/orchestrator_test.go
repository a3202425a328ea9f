package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/faults"
	"shortvid-pipeline/taskstore"
	"shortvid-pipeline/types"
)

type fakeAuthor struct {
	script *types.Script
	err    error
}

func (f *fakeAuthor) Generate(ctx context.Context, prompt string, totalSeconds float64) (*types.Script, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.script, nil
}

type fakeAssembler struct {
	built []int
	err   error
}

func (f *fakeAssembler) BuildScene(ctx context.Context, scene types.Scene, orientation types.Orientation, workDir string) (types.SceneBundle, error) {
	if f.err != nil {
		return types.SceneBundle{}, f.err
	}
	f.built = append(f.built, scene.SceneNumber)
	return types.SceneBundle{
		SceneNumber: scene.SceneNumber,
		AudioPath:   filepath.Join(workDir, "a.wav"),
		VideoPath:   filepath.Join(workDir, "v.mp4"),
		Duration:    scene.DurationSeconds,
	}, nil
}

type fakeRenderer struct {
	composed  int
	mixedWith string
	finalized bool
}

func (f *fakeRenderer) ComposeScene(ctx context.Context, bundle types.SceneBundle, orientation types.Orientation, workDir string) (string, error) {
	f.composed++
	return filepath.Join(workDir, fmt.Sprintf("styled_%d.mp4", bundle.SceneNumber)), nil
}

func (f *fakeRenderer) Concatenate(ctx context.Context, scenePaths []string, workDir string) (string, error) {
	return filepath.Join(workDir, "joined.mp4"), nil
}

func (f *fakeRenderer) MixMusic(ctx context.Context, videoPath, musicPath, workDir string) (string, error) {
	f.mixedWith = musicPath
	return filepath.Join(workDir, "with_music.mp4"), nil
}

func (f *fakeRenderer) Finalize(ctx context.Context, srcPath, destPath string) error {
	f.finalized = true
	return nil
}

type fakeMusic struct {
	path string
	err  error
}

func (f *fakeMusic) Find(ctx context.Context, keywords []string, targetDuration float64, destDir string) (string, error) {
	return f.path, f.err
}

func testScript() *types.Script {
	return &types.Script{
		Title:                   "Test",
		BackgroundMusicKeywords: []string{"calm"},
		Scenes: []types.Scene{
			{SceneNumber: 1, MediaSource: types.MediaStock, VoiceoverText: "one", DurationSeconds: 5},
			{SceneNumber: 2, MediaSource: types.MediaStock, VoiceoverText: "two", DurationSeconds: 5},
		},
	}
}

func waitTerminal(t *testing.T, store taskstore.Store, id string) types.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if task, ok := store.Get(id); ok && task.Status.Terminal() {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
	task, _ := store.Get(id)
	t.Fatalf("task never reached a terminal state: %+v", task)
	return types.Task{}
}

func testOrchestrator(t *testing.T, author ScriptAuthor, assembler SceneAssembler, renderer Renderer, music MusicFinder) (*Orchestrator, *taskstore.MemoryStore) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	store := taskstore.NewMemory()
	return New(cfg, store, author, assembler, renderer, music, zerolog.Nop()), store
}

func TestHappyPathWithMusic(t *testing.T) {
	assembler := &fakeAssembler{}
	renderer := &fakeRenderer{}
	o, store := testOrchestrator(t, &fakeAuthor{script: testScript()}, assembler, renderer,
		&fakeMusic{path: "/music/track.mp3"})

	id := o.Submit("a coffee ad", 10, types.Horizontal)
	task := waitTerminal(t, store, id)

	if task.Status != types.StatusComplete {
		t.Fatalf("status = %s (%s)", task.Status, task.Message)
	}
	if task.ResultPath == "" || filepath.Base(task.ResultPath) != "final_video.mp4" {
		t.Fatalf("result path = %q", task.ResultPath)
	}
	if len(assembler.built) != 2 || assembler.built[0] != 1 || assembler.built[1] != 2 {
		t.Fatalf("scene order: %v", assembler.built)
	}
	if renderer.composed != 2 || !renderer.finalized {
		t.Fatalf("renderer calls: %+v", renderer)
	}
	if renderer.mixedWith != "/music/track.mp3" {
		t.Fatalf("music not mixed: %q", renderer.mixedWith)
	}
}

func TestNoMusicSkipsMix(t *testing.T) {
	renderer := &fakeRenderer{}
	o, store := testOrchestrator(t, &fakeAuthor{script: testScript()}, &fakeAssembler{}, renderer,
		&fakeMusic{path: ""})

	id := o.Submit("prompt", 10, types.Vertical)
	task := waitTerminal(t, store, id)

	if task.Status != types.StatusComplete {
		t.Fatalf("status = %s (%s)", task.Status, task.Message)
	}
	if renderer.mixedWith != "" {
		t.Fatalf("mix ran without a track: %q", renderer.mixedWith)
	}
}

func TestExhaustedCredentialsReachTerminalError(t *testing.T) {
	authorErr := &faults.AllCredentialsExhaustedError{
		Provider: "script author",
		Last:     faults.ErrRateLimited,
	}
	o, store := testOrchestrator(t, &fakeAuthor{err: authorErr}, &fakeAssembler{},
		&fakeRenderer{}, &fakeMusic{})

	id := o.Submit("prompt", 10, types.Horizontal)
	task := waitTerminal(t, store, id)

	if task.Status != types.StatusError {
		t.Fatalf("status = %s", task.Status)
	}
	if !strings.Contains(task.Message, "all credentials exhausted") {
		t.Fatalf("message = %q", task.Message)
	}
}

func TestInvalidScriptDurationFailsTask(t *testing.T) {
	script := testScript()
	script.Scenes[0].DurationSeconds = 9 // outside stock bounds
	o, store := testOrchestrator(t, &fakeAuthor{script: script}, &fakeAssembler{},
		&fakeRenderer{}, &fakeMusic{})

	id := o.Submit("prompt", 14, types.Horizontal)
	task := waitTerminal(t, store, id)

	if task.Status != types.StatusError {
		t.Fatalf("status = %s", task.Status)
	}
	if !strings.Contains(task.Message, "outside allowed range") {
		t.Fatalf("message = %q", task.Message)
	}
}

func TestSceneFailureFailsTask(t *testing.T) {
	o, store := testOrchestrator(t, &fakeAuthor{script: testScript()},
		&fakeAssembler{err: &faults.NoResultsFoundError{Provider: "stock footage", Query: "x"}},
		&fakeRenderer{}, &fakeMusic{})

	id := o.Submit("prompt", 10, types.Horizontal)
	task := waitTerminal(t, store, id)

	if task.Status != types.StatusError {
		t.Fatalf("status = %s", task.Status)
	}
	if !strings.Contains(task.Message, "no results found") {
		t.Fatalf("message = %q", task.Message)
	}
}

func TestMusicLookupFailureIsNonFatal(t *testing.T) {
	renderer := &fakeRenderer{}
	o, store := testOrchestrator(t, &fakeAuthor{script: testScript()}, &fakeAssembler{}, renderer,
		&fakeMusic{err: fmt.Errorf("freesound down")})

	id := o.Submit("prompt", 10, types.Horizontal)
	task := waitTerminal(t, store, id)

	if task.Status != types.StatusComplete {
		t.Fatalf("status = %s (%s)", task.Status, task.Message)
	}
	if renderer.mixedWith != "" {
		t.Fatal("mix ran after music lookup failure")
	}
}
