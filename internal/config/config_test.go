package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
database:
  url: postgres://u:p@localhost:5432/replies
redis:
  url: localhost:6379
slack:
  bot_token: xoxb-test
ai:
  openai_key: sk-test
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Worker.VisibilityTimeout != 60*time.Second {
		t.Errorf("visibility timeout default = %s", cfg.Worker.VisibilityTimeout)
	}
	if cfg.Worker.MaxAttempts != 5 {
		t.Errorf("max attempts default = %d", cfg.Worker.MaxAttempts)
	}
	if cfg.Delivery.EphemeralAttempts != 2 || cfg.Delivery.DMFallbackAttempts != 1 {
		t.Errorf("delivery defaults = %+v", cfg.Delivery)
	}
	if cfg.AI.Provider != "openai" || cfg.AI.DefaultModel == "" {
		t.Errorf("ai defaults = %+v", cfg.AI)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %+v", cfg.Log)
	}
}

func TestParse_Overrides(t *testing.T) {
	doc := minimal + `
worker:
  concurrency: 3
  visibility_timeout: 90s
delivery:
  dm_fallback_attempts: 2
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Worker.Concurrency != 3 || cfg.Worker.VisibilityTimeout != 90*time.Second {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	if cfg.Delivery.DMFallbackAttempts != 2 {
		t.Errorf("dm fallback = %d", cfg.Delivery.DMFallbackAttempts)
	}
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-from-env")
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Slack.BotToken != "xoxb-from-env" {
		t.Errorf("expected env token, got %q", cfg.Slack.BotToken)
	}
}

func TestParse_Validation(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "")
	cases := map[string]string{
		"database.url":    strings.Replace(minimal, "postgres://u:p@localhost:5432/replies", `""`, 1),
		"slack.bot_token": strings.Replace(minimal, "xoxb-test", `""`, 1),
		"gemini_key":      minimal + "  provider: gemini\n",
		"not supported":   minimal + "  provider: llama\n",
	}
	for want, doc := range cases {
		t.Run(want, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			if err == nil || !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error mentioning %q, got %v", want, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Runtime.Dev {
		t.Error("expected dev flag to be carried")
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false); err == nil {
		t.Error("expected error for missing file")
	}
}
