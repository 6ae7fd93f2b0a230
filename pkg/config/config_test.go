package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfig(t, `{
	  "onebot": {"addr": "127.0.0.1:3001", "access_token": "secret"},
	  "bot": {"user_id": 2582770985},
	  "wiki_rate_limit": {"max_queries": 3, "time_window": 120},
	  "smapi_rate_limit": {"time_window": 600, "max_daily_uses": 20, "max_log_chars": 50000},
	  "poke": {"enabled": true, "messages": ["乌~啦～！"]},
	  "group_increase": {"enabled": true, "welcome_message": " 你好！欢迎加入！"},
	  "openai": {"base_url": "https://api.deepseek.com", "ai_chat": {"model": "deepseek-chat"}},
	  "logging": {"format": "json", "level": "debug"}
	}`)

	t.Setenv("WIKIBOT_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.OneBot.Addr != "127.0.0.1:3001" {
		t.Fatalf("onebot.addr = %q, want %q", cfg.OneBot.Addr, "127.0.0.1:3001")
	}
	if cfg.Bot.UserID != 2582770985 {
		t.Fatalf("bot.user_id = %d, want %d", cfg.Bot.UserID, int64(2582770985))
	}
	if cfg.WikiRate.MaxQueries != 3 || cfg.WikiRate.TimeWindowSeconds != 120 {
		t.Fatalf("wiki_rate_limit = %+v, want {3 120}", cfg.WikiRate)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{
	  "onebot": {"addr": "127.0.0.1:3001"},
	  "bot": {"user_id": 100}
	}`)

	t.Setenv("WIKIBOT_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.OneBot.ReconnectSeconds != 5 {
		t.Fatalf("reconnect_seconds = %d, want 5", cfg.OneBot.ReconnectSeconds)
	}
	if cfg.Wiki.BaseURL != "https://zh.stardewvalleywiki.com" {
		t.Fatalf("wiki.base_url = %q", cfg.Wiki.BaseURL)
	}
	if cfg.Smapi.TimeWindowSeconds != 600 || cfg.Smapi.MaxDailyUses != 20 || cfg.Smapi.MaxLogChars != 50000 {
		t.Fatalf("smapi defaults = %+v", cfg.Smapi)
	}
	if cfg.Poke.Probability != 0.02 {
		t.Fatalf("poke.probability = %v, want 0.02", cfg.Poke.Probability)
	}
	if !cfg.Poke.IsEnabled() || !cfg.Welcome.IsEnabled() {
		t.Fatal("poke and welcome should default to enabled")
	}
	if cfg.Forward.DefaultUIN != 100 {
		t.Fatalf("forward.default_uin = %d, want bot user id", cfg.Forward.DefaultUIN)
	}
}

func TestLoadConfigEnvOverridesToken(t *testing.T) {
	path := writeConfig(t, `{
	  "onebot": {"addr": "127.0.0.1:3001", "access_token": "from-file"},
	  "bot": {"user_id": 100}
	}`)

	t.Setenv("WIKIBOT_CONFIG", path)
	t.Setenv("WIKIBOT_ACCESS_TOKEN", "from-env")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.OneBot.AccessToken != "from-env" {
		t.Fatalf("access_token = %q, want env override", cfg.OneBot.AccessToken)
	}
}

func TestLoadConfigRejectsMissingAddr(t *testing.T) {
	path := writeConfig(t, `{"bot": {"user_id": 100}}`)
	t.Setenv("WIKIBOT_CONFIG", path)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing onebot.addr")
	}
}

func TestLoadConfigInvalidEnvPath(t *testing.T) {
	t.Setenv("WIKIBOT_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config path")
	}
}

func TestPokeDisabled(t *testing.T) {
	path := writeConfig(t, `{
	  "onebot": {"addr": "127.0.0.1:3001"},
	  "bot": {"user_id": 100},
	  "poke": {"enabled": false}
	}`)

	t.Setenv("WIKIBOT_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Poke.IsEnabled() {
		t.Fatal("poke.enabled = false should disable pokes")
	}
}
