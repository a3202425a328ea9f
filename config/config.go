package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shortvid-pipeline/faults"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Video   VideoConfig   `yaml:"video"`
	Script  ScriptConfig  `yaml:"script"`
	Audio   AudioConfig   `yaml:"audio"`
	Stock   StockConfig   `yaml:"stock"`
	AIVideo AIVideoConfig `yaml:"ai_video"`
	Music   MusicConfig   `yaml:"music"`
	Paths   PathsConfig   `yaml:"paths"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type VideoConfig struct {
	FPS          int     `yaml:"fps"`
	CRF          int     `yaml:"crf"`
	ZoomRatio    float64 `yaml:"zoom_ratio"`     // total zoom over a scene, e.g. 0.1
	Contrast     float64 `yaml:"contrast"`       // eq contrast, e.g. 1.3
	Darken       float64 `yaml:"darken"`         // channel multiplier, e.g. 0.9
	FontSize     int     `yaml:"font_size"`      // subtitle font size
	StrokeWidth  int     `yaml:"stroke_width"`   // subtitle stroke width
	MusicVolume  float64 `yaml:"music_volume"`   // background music amplitude, e.g. 0.15
	ChunkMinWord int     `yaml:"chunk_min_word"` // subtitle chunk size bounds
	ChunkMaxWord int     `yaml:"chunk_max_word"`
}

type ScriptConfig struct {
	GeminiModel   string  `yaml:"gemini_model"`
	OpenAIModel   string  `yaml:"openai_model"`
	Temperature   float64 `yaml:"temperature"`
	TotalDriftSec float64 `yaml:"total_drift_sec"` // max tolerated drift before last-scene repair
}

type AudioConfig struct {
	TTSModel string `yaml:"tts_model"`
	Voice    string `yaml:"voice"`
}

type StockConfig struct {
	RetriesPerKey int           `yaml:"retries_per_key"`
	RetryPause    time.Duration `yaml:"retry_pause"`
}

type AIVideoConfig struct {
	Model        string        `yaml:"model"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

type MusicConfig struct {
	MaxKeywords   int `yaml:"max_keywords"`   // keywords joined into the search query
	TopCandidates int `yaml:"top_candidates"` // random pick among the top N
}

type PathsConfig struct {
	WorkDir string `yaml:"work_dir"`
}

// Default returns the configuration used when no config.yaml is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8000"},
		Video: VideoConfig{
			FPS:          60,
			CRF:          23,
			ZoomRatio:    0.1,
			Contrast:     1.3,
			Darken:       0.9,
			FontSize:     80,
			StrokeWidth:  5,
			MusicVolume:  0.15,
			ChunkMinWord: 2,
			ChunkMaxWord: 4,
		},
		Script: ScriptConfig{
			GeminiModel:   "gemini-2.5-flash",
			OpenAIModel:   "gpt-4o-mini",
			Temperature:   0.7,
			TotalDriftSec: 0.5,
		},
		Audio: AudioConfig{
			TTSModel: "gemini-2.5-flash-preview-tts",
			Voice:    "Kore",
		},
		Stock: StockConfig{
			RetriesPerKey: 3,
			RetryPause:    time.Second,
		},
		AIVideo: AIVideoConfig{
			Model:        "veo-3.1-generate-preview",
			PollInterval: 5 * time.Second,
			MaxPolls:     120,
		},
		Music: MusicConfig{
			MaxKeywords:   2,
			TopCandidates: 3,
		},
		Paths: PathsConfig{WorkDir: "temp_files"},
	}
}

// Load reads config.yaml over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, faults.InvalidConfig("parse %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures tunables are usable.
func (c *Config) Validate() error {
	if c.Video.FPS <= 0 {
		return faults.InvalidConfig("video.fps must be positive")
	}
	if c.Video.ChunkMinWord < 1 || c.Video.ChunkMaxWord < c.Video.ChunkMinWord {
		return faults.InvalidConfig("chunk word bounds must satisfy 1 <= min <= max")
	}
	if c.Video.MusicVolume < 0 || c.Video.MusicVolume > 1 {
		return faults.InvalidConfig("video.music_volume must be in [0, 1]")
	}
	if c.AIVideo.MaxPolls <= 0 || c.AIVideo.PollInterval <= 0 {
		return faults.InvalidConfig("ai_video polling settings must be positive")
	}
	if c.Music.TopCandidates < 1 {
		return faults.InvalidConfig("music.top_candidates must be at least 1")
	}
	if c.Paths.WorkDir == "" {
		return faults.InvalidConfig("paths.work_dir is required")
	}
	return nil
}

// Secrets holds provider credentials loaded from the environment.
type Secrets struct {
	GoogleKeys         []string // GOOGLE_API_KEYS, comma separated
	PexelsKeys         []string // PEXELS_API_KEYS, comma separated
	FreesoundKey       string   // FREESOUND_API_KEY, optional
	OpenAIKey          string   // OPENAI_API_KEY, optional preferred-model path
	VideoGenCredential CredentialSource
}

// LoadSecrets reads credentials from the environment. The script author and
// TTS share the Google pool; stock search has its own pool. The AI video
// credential is resolved into its tagged form exactly once, here.
func LoadSecrets() (*Secrets, error) {
	google := splitKeys(os.Getenv("GOOGLE_API_KEYS"))
	if len(google) == 0 {
		return nil, faults.InvalidConfig("GOOGLE_API_KEYS not set")
	}
	pexels := splitKeys(os.Getenv("PEXELS_API_KEYS"))
	if len(pexels) == 0 {
		return nil, faults.InvalidConfig("PEXELS_API_KEYS not set")
	}
	return &Secrets{
		GoogleKeys:         google,
		PexelsKeys:         pexels,
		FreesoundKey:       os.Getenv("FREESOUND_API_KEY"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		VideoGenCredential: ResolveCredential(os.Getenv("VIDEO_GEN_CREDENTIAL")),
	}, nil
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
