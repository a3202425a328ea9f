package types

import (
	"fmt"
	"time"
)

// MediaSource selects where a scene's visual footage comes from.
type MediaSource string

const (
	MediaStock       MediaSource = "stock"
	MediaAIGenerated MediaSource = "ai_generated"
)

// DurationBounds returns the allowed scene duration range for this source.
// Stock clips can be short; AI generation needs a minimum length to look right.
func (m MediaSource) DurationBounds() (min, max float64) {
	if m == MediaAIGenerated {
		return 4, 6
	}
	return 2, 6
}

// Valid reports whether m is a known media source.
func (m MediaSource) Valid() bool {
	return m == MediaStock || m == MediaAIGenerated
}

// Scene is one timed segment of the final video
type Scene struct {
	SceneNumber     int         `json:"scene_number" jsonschema_description:"The order of the scene, starting at 1."`
	MediaSource     MediaSource `json:"media_source" jsonschema_description:"Either 'stock' for stock footage or 'ai_generated' for AI video generation."`
	VisualPrompt    string      `json:"visual_prompt" jsonschema_description:"A 3-7 word stock search query, or a detailed generation prompt for AI scenes."`
	VoiceoverText   string      `json:"voiceover_text" jsonschema_description:"The narration spoken over this scene."`
	DurationSeconds float64     `json:"duration_seconds" jsonschema_description:"Scene length in seconds. Stock scenes 2-6s, AI scenes 4-6s."`
}

// Script is the full authored script for one video
type Script struct {
	Title                   string   `json:"title" jsonschema_description:"A short, catchy video title."`
	BackgroundMusicKeywords []string `json:"background_music_keywords" jsonschema_description:"2-3 keywords describing fitting background music, e.g. 'upbeat pop'."`
	Scenes                  []Scene  `json:"scenes" jsonschema_description:"The ordered list of scenes. Aim for 3-5."`
}

// TotalDuration sums all scene durations.
func (s *Script) TotalDuration() float64 {
	var total float64
	for _, sc := range s.Scenes {
		total += sc.DurationSeconds
	}
	return total
}

// TaskStatus is the lifecycle state of one generation task.
type TaskStatus string

const (
	StatusPending          TaskStatus = "pending"
	StatusGeneratingScript TaskStatus = "generating_script"
	StatusGeneratingVideo  TaskStatus = "generating_video"
	StatusComplete         TaskStatus = "complete"
	StatusError            TaskStatus = "error"
)

// Terminal reports whether the status has no outgoing transition.
func (s TaskStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Task tracks one end-to-end request to produce a single video
type Task struct {
	ID         string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	Message    string     `json:"message"`
	ResultPath string     `json:"result_path,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Orientation picks the target frame geometry.
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// ParseOrientation accepts the wire value, defaulting to horizontal when empty.
func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(s) {
	case "":
		return Horizontal, nil
	case Horizontal, Vertical:
		return Orientation(s), nil
	}
	return "", fmt.Errorf("unknown orientation %q (want horizontal or vertical)", s)
}

// FrameSize returns the exact target pixel dimensions.
func (o Orientation) FrameSize() (width, height int) {
	if o == Vertical {
		return 1080, 1920
	}
	return 1920, 1080
}

// AspectRatio returns the ratio string used by video generation providers.
func (o Orientation) AspectRatio() string {
	if o == Vertical {
		return "9:16"
	}
	return "16:9"
}

// SubtitleChunk is one timed group of 2-4 words burned onto a scene.
type SubtitleChunk struct {
	Text        string  `json:"text"`
	StartOffset float64 `json:"start_offset"`
	Duration    float64 `json:"duration"`
}

// SceneBundle is a fully prepared scene: audio and video both reconciled to
// exactly Duration seconds, plus subtitle timing. Handed to the renderer once.
type SceneBundle struct {
	SceneNumber int             `json:"scene_number"`
	AudioPath   string          `json:"audio_path"`
	VideoPath   string          `json:"video_path"`
	Duration    float64         `json:"duration"`
	Subtitles   []SubtitleChunk `json:"subtitles"`
}
