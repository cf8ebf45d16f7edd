package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the runtime configuration of the design service and of editor sessions.
// It is read from an optional YAML file (STUDIO_CONFIG) and then overridden by env vars.
type Settings struct {
	Server   ServerSettings   `yaml:"server"`
	Storage  StorageSettings  `yaml:"storage"`
	ImageGen ImageGenSettings `yaml:"image_gen"`
	Editor   EditorSettings   `yaml:"editor"`
	Logging  LoggingSettings  `yaml:"logging"`
}

type ServerSettings struct {
	Port    string `yaml:"port"`
	DBURL   string `yaml:"db_url"`
	Migrate bool   `yaml:"migrate"`
}

// StorageSettings picks where thumbnails go: a GCS bucket when Bucket is set, LocalDir otherwise.
type StorageSettings struct {
	Bucket   string `yaml:"bucket"`
	LocalDir string `yaml:"local_dir"`
	BaseURL  string `yaml:"base_url"`
}

type ImageGenSettings struct {
	APIKey string `yaml:"-"`
	Model  string `yaml:"model"`
}

// EditorSettings drives a studio editing session.
type EditorSettings struct {
	APIBaseURL       string        `yaml:"api_base_url"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	AutosaveDebounce time.Duration `yaml:"autosave_debounce"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
	DraftsPath       string        `yaml:"drafts_path"`
	ThumbnailMaxEdge int           `yaml:"thumbnail_max_edge"`
	ThumbnailQuality int           `yaml:"thumbnail_quality"`
}

type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

const (
	EnvConfigPath     = "STUDIO_CONFIG"
	EnvPort           = "PORT"
	EnvDBURL          = "DB_URL"
	EnvMigrate        = "DB_MIGRATE"
	EnvBucket         = "GCS_THUMBNAIL_BUCKET"
	EnvLocalDir       = "THUMBNAIL_DIR"
	EnvPublicBaseURL  = "THUMBNAIL_BASE_URL"
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
	EnvImageModel     = "GEMINI_IMAGE_MODEL"
	EnvAPIBaseURL     = "STUDIO_API_URL"
	EnvDebounce       = "STUDIO_AUTOSAVE_DEBOUNCE"
	EnvInterval       = "STUDIO_AUTOSAVE_INTERVAL"
	EnvDraftsPath     = "STUDIO_DRAFTS_PATH"
	EnvLogLevel       = "STUDIO_LOG_LEVEL"
	EnvLogFormat      = "STUDIO_LOG_FORMAT"
	EnvLogFile        = "STUDIO_LOG_FILE"
	defaultImageModel = "imagen-3.0-generate-002"
)

// Defaults returns the built-in settings. The autosave timings are 30s after the last edit
// and a 2 minute safety net.
func Defaults() Settings {
	return Settings{
		Server:   ServerSettings{Port: "3000"},
		Storage:  StorageSettings{LocalDir: "temp/thumbnails", BaseURL: "/thumbnails"},
		ImageGen: ImageGenSettings{Model: defaultImageModel},
		Editor: EditorSettings{
			APIBaseURL:       "http://localhost:3000/api/v1",
			RequestTimeout:   15 * time.Second,
			AutosaveDebounce: 30 * time.Second,
			AutosaveInterval: 2 * time.Minute,
			RetryAttempts:    3,
			RetryBaseDelay:   500 * time.Millisecond,
			RetryMaxDelay:    8 * time.Second,
			ThumbnailMaxEdge: 300,
			ThumbnailQuality: 60,
		},
		Logging: LoggingSettings{Level: "info", Format: "text"},
	}
}

// Load reads defaults, the YAML file named by STUDIO_CONFIG if any, then env overrides.
func Load() (Settings, error) {
	return LoadFile(os.Getenv(EnvConfigPath))
}

// LoadFile is Load with an explicit file path; an empty path skips the file.
func LoadFile(path string) (Settings, error) {
	s := Defaults()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&s)
	return s, nil
}

func applyEnv(s *Settings) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
			}
		}
	}
	str(EnvPort, &s.Server.Port)
	str(EnvDBURL, &s.Server.DBURL)
	if v := os.Getenv(EnvMigrate); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Server.Migrate = b
		}
	}
	str(EnvBucket, &s.Storage.Bucket)
	str(EnvLocalDir, &s.Storage.LocalDir)
	str(EnvPublicBaseURL, &s.Storage.BaseURL)
	str(EnvGeminiAPIKey, &s.ImageGen.APIKey)
	str(EnvImageModel, &s.ImageGen.Model)
	str(EnvAPIBaseURL, &s.Editor.APIBaseURL)
	dur(EnvDebounce, &s.Editor.AutosaveDebounce)
	dur(EnvInterval, &s.Editor.AutosaveInterval)
	str(EnvDraftsPath, &s.Editor.DraftsPath)
	str(EnvLogLevel, &s.Logging.Level)
	str(EnvLogFormat, &s.Logging.Format)
	str(EnvLogFile, &s.Logging.File)
}
