package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	envConfigPath  = "WIKIBOT_CONFIG"
	envAccessToken = "WIKIBOT_ACCESS_TOKEN"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	OneBot   OneBotConfig  `json:"onebot"`
	Bot      BotConfig     `json:"bot"`
	Wiki     WikiConfig    `json:"wiki"`
	WikiRate WindowConfig  `json:"wiki_rate_limit"`
	Smapi    SmapiConfig   `json:"smapi_rate_limit"`
	Poke     PokeConfig    `json:"poke"`
	Welcome  WelcomeConfig `json:"group_increase"`
	Forward  ForwardConfig `json:"forward,omitempty"`
	OpenAI   OpenAIConfig  `json:"openai"`
	Logging  LoggingConfig `json:"logging,omitempty"`
}

// OneBotConfig configures the upstream OneBot websocket endpoint.
type OneBotConfig struct {
	Addr             string `json:"addr"`
	AccessToken      string `json:"access_token,omitempty"`
	ReconnectSeconds int    `json:"reconnect_seconds,omitempty"`
}

// BotConfig identifies the bot's own platform account.
type BotConfig struct {
	UserID int64 `json:"user_id"`
}

// WikiConfig configures the wiki search and screenshot services.
type WikiConfig struct {
	BaseURL       string `json:"base_url,omitempty"`
	ScreenshotDir string `json:"screenshot_dir,omitempty"`
}

// WindowConfig is a sliding-window rate limit: at most MaxQueries calls
// per key within each TimeWindowSeconds-long window.
type WindowConfig struct {
	MaxQueries        int `json:"max_queries"`
	TimeWindowSeconds int `json:"time_window"`
}

// SmapiConfig bounds the log-analysis flow.
type SmapiConfig struct {
	TimeWindowSeconds int    `json:"time_window"`
	MaxDailyUses      int    `json:"max_daily_uses"`
	MaxLogChars       int    `json:"max_log_chars"`
	SaveDir           string `json:"save_dir,omitempty"`
}

// PokeConfig controls the poke-back and random-poke behaviors.
type PokeConfig struct {
	Enabled     *bool    `json:"enabled,omitempty"`
	Probability float64  `json:"probability,omitempty"`
	Messages    []string `json:"messages,omitempty"`
}

// IsEnabled reports whether poke behavior is active. Absent means enabled.
func (c PokeConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// WelcomeConfig controls the group-join welcome message.
type WelcomeConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	WelcomeMessage string `json:"welcome_message,omitempty"`
}

// IsEnabled reports whether join welcomes are active. Absent means enabled.
func (c WelcomeConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ForwardConfig describes the fixed attribution entries prepended to the
// log-analysis forwarded-message bundle.
type ForwardConfig struct {
	DefaultUIN  int64          `json:"default_uin,omitempty"`
	DefaultName string         `json:"default_name,omitempty"`
	Entries     []ForwardEntry `json:"entries,omitempty"`
}

// ForwardEntry is one attributed text node in a forward bundle.
type ForwardEntry struct {
	UIN  int64  `json:"uin"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// OpenAIConfig configures the completion service.
type OpenAIConfig struct {
	BaseURL               string          `json:"base_url,omitempty"`
	APIKeyEnv             string          `json:"api_key_env,omitempty"`
	RequestTimeoutSeconds int             `json:"request_timeout_seconds,omitempty"`
	Chat                  CompletionModel `json:"ai_chat"`
	Smapi                 CompletionModel `json:"ai_chat_smapi"`
}

// CompletionModel pairs one model with its system prompt.
type CompletionModel struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, applies environment
// overrides, and fills defaults.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if token := strings.TrimSpace(os.Getenv(envAccessToken)); token != "" {
		cfg.OneBot.AccessToken = token
	}
}

// applyDefaults fills zero-valued settings with their operational defaults.
func applyDefaults(cfg *Config) {
	if cfg.OneBot.ReconnectSeconds <= 0 {
		cfg.OneBot.ReconnectSeconds = 5
	}
	if cfg.Wiki.BaseURL == "" {
		cfg.Wiki.BaseURL = "https://zh.stardewvalleywiki.com"
	}
	if cfg.Wiki.ScreenshotDir == "" {
		cfg.Wiki.ScreenshotDir = "screenshots"
	}
	if cfg.WikiRate.MaxQueries <= 0 {
		cfg.WikiRate.MaxQueries = 5
	}
	if cfg.WikiRate.TimeWindowSeconds <= 0 {
		cfg.WikiRate.TimeWindowSeconds = 60
	}
	if cfg.Smapi.TimeWindowSeconds <= 0 {
		cfg.Smapi.TimeWindowSeconds = 600
	}
	if cfg.Smapi.MaxDailyUses <= 0 {
		cfg.Smapi.MaxDailyUses = 20
	}
	if cfg.Smapi.MaxLogChars <= 0 {
		cfg.Smapi.MaxLogChars = 50000
	}
	if cfg.Smapi.SaveDir == "" {
		cfg.Smapi.SaveDir = filepath.Join("logs", "smapi")
	}
	if cfg.Poke.Probability <= 0 {
		cfg.Poke.Probability = 0.02
	}
	if len(cfg.Poke.Messages) == 0 {
		cfg.Poke.Messages = []string{"乌~啦～！"}
	}
	if cfg.Welcome.WelcomeMessage == "" {
		cfg.Welcome.WelcomeMessage = " 你好！欢迎加入！"
	}
	if cfg.Forward.DefaultUIN == 0 {
		cfg.Forward.DefaultUIN = cfg.Bot.UserID
	}
	if cfg.Forward.DefaultName == "" {
		cfg.Forward.DefaultName = "乌萨奇大王"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
}

// validate rejects configurations the bot cannot start with.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.OneBot.Addr) == "" {
		return errors.New("onebot.addr is required")
	}
	if cfg.Bot.UserID == 0 {
		return errors.New("bot.user_id is required")
	}

	return nil
}

// findConfigPath resolves the active config file location.
//
// Precedence is WIKIBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
