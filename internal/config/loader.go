package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "config/config.yaml"

// envPrefix prefixes every environment override, e.g. TEXTANDDRIVE_LLM_API_KEY.
const envPrefix = "TEXTANDDRIVE_"

type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Context      ContextConfig      `yaml:"context"`
	Tools        ToolsConfig        `yaml:"tools"`
	ChatData     ChatDataConfig     `yaml:"chatdata"`
	STT          STTConfig          `yaml:"stt"`
	TTS          TTSConfig          `yaml:"tts"`
	Confirmation ConfirmationConfig `yaml:"confirmation"`
	Voice        VoiceConfig        `yaml:"voice"`
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
}

type LLMConfig struct {
	Endpoint    string        `yaml:"endpoint" validate:"required,url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model" validate:"required"`
	Temperature float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`
	ToolMode    string        `yaml:"tool_mode" validate:"oneof=functions tools"`
}

type ContextConfig struct {
	// MaxBackAndForth is how many user/assistant exchanges the history keeps.
	MaxBackAndForth int    `yaml:"max_back_and_forth" validate:"gte=1"`
	ChatLimit       int    `yaml:"chat_limit" validate:"gte=1,lte=200"`
	Store           string `yaml:"store" validate:"oneof=memory badger"`
	BadgerPath      string `yaml:"badger_path"`
}

type ToolsConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Transport    string   `yaml:"transport" validate:"oneof=local stdio"`
	ServerBinary string   `yaml:"server_binary" validate:"required_if=Transport stdio"`
	ServerArgs   []string `yaml:"server_args"`
}

type ChatDataConfig struct {
	// DBPath is the SQLite file. Empty means an in-memory database.
	DBPath   string `yaml:"db_path"`
	Fixture  string `yaml:"fixture"`
	Timezone string `yaml:"timezone"`
	SelfID   string `yaml:"self_id"`
	SelfName string `yaml:"self_name"`
}

type STTConfig struct {
	Provider string        `yaml:"provider" validate:"oneof=whisper elevenlabs"`
	BaseURL  string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
}

type TTSConfig struct {
	Provider     string        `yaml:"provider" validate:"oneof=elevenlabs openai none"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey       string        `yaml:"api_key"`
	VoiceID      string        `yaml:"voice_id"`
	Model        string        `yaml:"model"`
	OutputFormat string        `yaml:"output_format"`
	CacheDir     string        `yaml:"cache_dir"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	// Player is a command line such as ["mpv", "--really-quiet"]; the audio
	// file is appended. Empty disables local playback.
	Player []string `yaml:"player"`
}

type ConfirmationConfig struct {
	EmptyPolicy  string `yaml:"empty_policy" validate:"oneof=silent canned"`
	CannedPhrase string `yaml:"canned_phrase"`
}

type VoiceConfig struct {
	RemoveRecordings bool `yaml:"remove_recordings"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used for any key a file leaves out.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Endpoint:    "https://inference.tinfoil.sh/v1/chat/completions",
			Model:       "qwen3-coder-480b",
			Temperature: 0.2,
			Timeout:     60 * time.Second,
			ToolMode:    "functions",
		},
		Context: ContextConfig{
			MaxBackAndForth: 5,
			ChatLimit:       35,
			Store:           "memory",
			BadgerPath:      "data/history",
		},
		Tools: ToolsConfig{
			Enabled:   true,
			Transport: "local",
		},
		ChatData: ChatDataConfig{
			DBPath:   "data/chats.db",
			SelfID:   "@me",
			SelfName: "Me",
		},
		STT: STTConfig{
			Provider: "whisper",
			Timeout:  60 * time.Second,
		},
		TTS: TTSConfig{
			Provider: "elevenlabs",
			CacheDir: os.TempDir(),
			Timeout:  60 * time.Second,
		},
		Confirmation: ConfirmationConfig{EmptyPolicy: "silent"},
		Server:       ServerConfig{Addr: ":8080"},
		Log:          LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path means DefaultPath, which
// may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.inheritKeys()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides secrets and deployment-specific keys from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, dst := range map[string]*string{
		"LLM_API_KEY":      &c.LLM.APIKey,
		"LLM_ENDPOINT":     &c.LLM.Endpoint,
		"LLM_MODEL":        &c.LLM.Model,
		"STT_API_KEY":      &c.STT.APIKey,
		"TTS_API_KEY":      &c.TTS.APIKey,
		"CHATDATA_DB_PATH": &c.ChatData.DBPath,
		"SERVER_ADDR":      &c.Server.Addr,
		"LOG_LEVEL":        &c.Log.Level,
	} {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
}

// inheritKeys lets Whisper share the LLM key, since both are usually served
// by the same inference provider.
func (c *Config) inheritKeys() {
	if c.STT.Provider == "whisper" && c.STT.APIKey == "" {
		c.STT.APIKey = c.LLM.APIKey
	}
}

// Location resolves ChatData.Timezone, defaulting to the local zone.
func (c ChatDataConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks enum and range constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "oneof":
			problems = append(problems, fmt.Sprintf("%s must be one of [%s]", fe.Namespace(), fe.Param()))
		case "required", "required_if":
			problems = append(problems, fmt.Sprintf("%s is required", fe.Namespace()))
		default:
			problems = append(problems, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// Mask hides all but the last four characters of a secret for logging.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}
