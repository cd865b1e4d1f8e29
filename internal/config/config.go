// Package config loads the process configuration from a JSON file.
// Fields are pointers so a partial config file is safe: anything
// omitted falls back to the documented default via its Get* accessor.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/clipforge-media/clipforge/internal/clip"
)

// Config is the root configuration. The schema doubles as the body of
// the /api/config endpoint so the same JSON works for startup and
// inspection.
type Config struct {
	// Storage
	DBPath    *string `json:"db_path,omitempty"`
	ExportDir *string `json:"export_dir,omitempty"`

	// Gate params
	TextWeight      *float64 `json:"text_weight,omitempty"`
	VisionWeight    *float64 `json:"vision_weight,omitempty"`
	AcceptThreshold *float64 `json:"accept_threshold,omitempty"`
	RejectThreshold *float64 `json:"reject_threshold,omitempty"`
	RejectFloor     *float64 `json:"reject_floor,omitempty"`
	BoostFactor     *float64 `json:"boost_factor,omitempty"`

	// Combiner params (five axes, must sum to 1.0 when set)
	WeightText           *float64 `json:"weight_text,omitempty"`
	WeightVision         *float64 `json:"weight_vision,omitempty"`
	WeightAudioEmphasis  *float64 `json:"weight_audio_emphasis,omitempty"`
	WeightFacialEmphasis *float64 `json:"weight_facial_emphasis,omitempty"`
	WeightCloud          *float64 `json:"weight_cloud,omitempty"`

	TopN             *int     `json:"top_n,omitempty"`
	CloudDurationCap *float64 `json:"cloud_duration_cap,omitempty"`

	// Export scheduler params
	ExportCapacity *int `json:"export_capacity,omitempty"`

	// Adapter params
	FFmpegPath     *string `json:"ffmpeg_path,omitempty"`
	FFprobePath    *string `json:"ffprobe_path,omitempty"`
	WhisperBin     *string `json:"whisper_bin,omitempty"`
	WhisperModel   *string `json:"whisper_model,omitempty"`
	LocalVLMURL    *string `json:"local_vlm_url,omitempty"`
	LocalVLMKey    *string `json:"local_vlm_key,omitempty"`
	LocalVLMModel  *string `json:"local_vlm_model,omitempty"`
	LocalVLMFrames *int    `json:"local_vlm_frames,omitempty"`
	CloudVLMURL    *string `json:"cloud_vlm_url,omitempty"`
	CloudVLMKey    *string `json:"cloud_vlm_key,omitempty"`
	CloudVLMModel  *string `json:"cloud_vlm_model,omitempty"`
	CloudVLMFrames *int    `json:"cloud_vlm_frames,omitempty"`
	CloudTimeout   *string `json:"cloud_timeout,omitempty"`   // duration string like "90s"
	AdapterTimeout *string `json:"adapter_timeout,omitempty"` // duration string like "5m"

	// Watch scanner params
	WatchInterval *string `json:"watch_interval,omitempty"` // duration string like "30s"

	// Event publisher params
	KafkaBrokers []string `json:"kafka_brokers,omitempty"`
	KafkaTopic   *string  `json:"kafka_topic,omitempty"`

	// HTTP and logging
	ListenAddr *string `json:"listen_addr,omitempty"`
	LogLevel   *string `json:"log_level,omitempty"`
	LogConsole *bool   `json:"log_console,omitempty"`
}

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a config JSON file. Omitted fields keep
// their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks threshold ordering, weight sums and duration syntax.
func (c *Config) Validate() error {
	if err := c.GateConfig().Validate(); err != nil {
		return err
	}

	// The five-axis weights are all-or-nothing: overriding a subset
	// would silently skew the sum.
	overridden := 0
	for _, w := range []*float64{c.WeightText, c.WeightVision, c.WeightAudioEmphasis, c.WeightFacialEmphasis, c.WeightCloud} {
		if w != nil {
			overridden++
		}
	}
	if overridden > 0 && overridden < 5 {
		return fmt.Errorf("combiner weights must be set together, got %d of 5", overridden)
	}
	if err := c.CombineWeights().Validate(); err != nil {
		return err
	}

	gateSum := c.GetTextWeight() + c.GetVisionWeight()
	if math.Abs(gateSum-1.0) > 1e-6 {
		return fmt.Errorf("gate weights must sum to 1.0, got %f", gateSum)
	}

	if c.TopN != nil && *c.TopN < 1 {
		return fmt.Errorf("top_n must be at least 1, got %d", *c.TopN)
	}
	if c.ExportCapacity != nil && *c.ExportCapacity < 1 {
		return fmt.Errorf("export_capacity must be at least 1, got %d", *c.ExportCapacity)
	}

	for name, v := range map[string]*string{
		"cloud_timeout":   c.CloudTimeout,
		"adapter_timeout": c.AdapterTimeout,
		"watch_interval":  c.WatchInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.LogLevel != nil {
		switch strings.ToLower(*c.LogLevel) {
		case "trace", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("unknown log_level %q", *c.LogLevel)
		}
	}
	return nil
}

// GateConfig assembles the confidence gate configuration.
func (c *Config) GateConfig() clip.GateConfig {
	return clip.GateConfig{
		TextWeight:      c.GetTextWeight(),
		VisionWeight:    c.GetVisionWeight(),
		AcceptThreshold: c.getFloat(c.AcceptThreshold, 0.65),
		RejectThreshold: c.getFloat(c.RejectThreshold, 0.40),
		RejectFloor:     c.getFloat(c.RejectFloor, 0.5),
		BoostFactor:     c.getFloat(c.BoostFactor, 0.5),
	}
}

// CombineWeights assembles the five-axis combiner weights.
func (c *Config) CombineWeights() clip.Weights {
	def := clip.DefaultWeights()
	return clip.Weights{
		Text:           c.getFloat(c.WeightText, def.Text),
		VisionLocal:    c.getFloat(c.WeightVision, def.VisionLocal),
		AudioEmphasis:  c.getFloat(c.WeightAudioEmphasis, def.AudioEmphasis),
		FacialEmphasis: c.getFloat(c.WeightFacialEmphasis, def.FacialEmphasis),
		VisionCloud:    c.getFloat(c.WeightCloud, def.VisionCloud),
	}
}

func (c *Config) getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func (c *Config) getString(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func (c *Config) getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetDBPath returns the db_path value or the default.
func (c *Config) GetDBPath() string { return c.getString(c.DBPath, "clipforge.db") }

// GetExportDir returns the export_dir value or the default.
func (c *Config) GetExportDir() string { return c.getString(c.ExportDir, "exports") }

// GetTextWeight returns the gate text_weight value or the default.
func (c *Config) GetTextWeight() float64 { return c.getFloat(c.TextWeight, 0.55) }

// GetVisionWeight returns the gate vision_weight value or the default.
func (c *Config) GetVisionWeight() float64 { return c.getFloat(c.VisionWeight, 0.45) }

// GetTopN returns the top_n value or the default.
func (c *Config) GetTopN() int {
	if c.TopN == nil {
		return 3
	}
	return *c.TopN
}

// GetCloudDurationCap returns the cloud preview window in seconds.
func (c *Config) GetCloudDurationCap() float64 { return c.getFloat(c.CloudDurationCap, 30) }

// GetExportCapacity returns the export_capacity value or the default.
func (c *Config) GetExportCapacity() int {
	if c.ExportCapacity == nil {
		return 2
	}
	return *c.ExportCapacity
}

// GetFFmpegPath returns the ffmpeg_path value or the default.
func (c *Config) GetFFmpegPath() string { return c.getString(c.FFmpegPath, "ffmpeg") }

// GetFFprobePath returns the ffprobe_path value or the default.
func (c *Config) GetFFprobePath() string { return c.getString(c.FFprobePath, "ffprobe") }

// GetWhisperBin returns the whisper_bin value or the default.
func (c *Config) GetWhisperBin() string { return c.getString(c.WhisperBin, "whisper") }

// GetWhisperModel returns the whisper_model value or the default.
func (c *Config) GetWhisperModel() string { return c.getString(c.WhisperModel, "base") }

// GetLocalVLMURL returns the local_vlm_url value or the default
// (llama.cpp server on localhost).
func (c *Config) GetLocalVLMURL() string {
	return c.getString(c.LocalVLMURL, "http://127.0.0.1:8080/v1")
}

// GetLocalVLMKey returns the local_vlm_key value, empty by default.
func (c *Config) GetLocalVLMKey() string { return c.getString(c.LocalVLMKey, "") }

// GetLocalVLMModel returns the local_vlm_model value or the default.
func (c *Config) GetLocalVLMModel() string { return c.getString(c.LocalVLMModel, "qwen2.5-vl-7b") }

// GetLocalVLMFrames returns the frames sampled per local scoring call.
// Zero means the adapter default.
func (c *Config) GetLocalVLMFrames() int {
	if c.LocalVLMFrames == nil {
		return 0
	}
	return *c.LocalVLMFrames
}

// GetCloudVLMFrames returns the frames sampled per cloud arbitration
// call. Zero means the adapter default.
func (c *Config) GetCloudVLMFrames() int {
	if c.CloudVLMFrames == nil {
		return 0
	}
	return *c.CloudVLMFrames
}

// GetCloudVLMURL returns the cloud_vlm_url value, empty for the
// provider default endpoint.
func (c *Config) GetCloudVLMURL() string { return c.getString(c.CloudVLMURL, "") }

// GetCloudVLMKey returns the cloud_vlm_key value or the OPENAI_API_KEY
// environment variable.
func (c *Config) GetCloudVLMKey() string {
	return c.getString(c.CloudVLMKey, os.Getenv("OPENAI_API_KEY"))
}

// GetCloudVLMModel returns the cloud_vlm_model value or the default.
func (c *Config) GetCloudVLMModel() string { return c.getString(c.CloudVLMModel, "gpt-4o-mini") }

// GetCloudTimeout returns the cloud_timeout value or the default.
func (c *Config) GetCloudTimeout() time.Duration { return c.getDuration(c.CloudTimeout, 90*time.Second) }

// GetAdapterTimeout returns the adapter_timeout value or the default.
func (c *Config) GetAdapterTimeout() time.Duration {
	return c.getDuration(c.AdapterTimeout, 5*time.Minute)
}

// GetWatchInterval returns the watch_interval value or the default.
func (c *Config) GetWatchInterval() time.Duration {
	return c.getDuration(c.WatchInterval, 30*time.Second)
}

// GetKafkaTopic returns the kafka_topic value or the default.
func (c *Config) GetKafkaTopic() string { return c.getString(c.KafkaTopic, "clipforge.processing") }

// GetListenAddr returns the listen_addr value or the default.
func (c *Config) GetListenAddr() string { return c.getString(c.ListenAddr, ":8880") }

// GetLogLevel returns the log_level value or the default.
func (c *Config) GetLogLevel() string { return c.getString(c.LogLevel, "info") }

// GetLogConsole returns the log_console value or the default.
func (c *Config) GetLogConsole() bool {
	if c.LogConsole == nil {
		return true
	}
	return *c.LogConsole
}
