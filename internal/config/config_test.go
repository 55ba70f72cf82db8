package config

import (
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		Voice: VoiceConfig{AccountSID: "AC1", APIKeySID: "SK1", APIKeySecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Voice.Identity != "alice" {
		t.Fatalf("expected default identity, got %q", c.Voice.Identity)
	}
	if c.Voice.TokenTTL != time.Hour {
		t.Fatalf("expected default token ttl, got %v", c.Voice.TokenTTL)
	}
	if c.Bridge.MaxCallGroups != 1 {
		t.Fatalf("expected single call group default, got %d", c.Bridge.MaxCallGroups)
	}
	if c.HasPostgres() || c.HasRedis() {
		t.Fatalf("expected optional stores to be disabled")
	}
}

func TestValidate_StaticTokenSkipsKeyMaterial(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "dev", Port: 8080},
		Voice: VoiceConfig{AccessToken: "eyJ..."},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "bridge"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validLocal()
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "bridge"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("VOICE_ACCESS_TOKEN", "static")
	t.Setenv("BRIDGE_SPEAKER_ON_CONNECT", "false")
	t.Setenv("LOOPBACK_ANSWER_DELAY", "250ms")

	c, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.App.Port != 9090 || c.HTTPAddr() != ":9090" {
		t.Fatalf("unexpected port: %d", c.App.Port)
	}
	if c.Bridge.SpeakerOnConnect {
		t.Fatalf("expected speaker on connect disabled")
	}
	if c.Loopback.AnswerDelay != 250*time.Millisecond {
		t.Fatalf("unexpected answer delay: %v", c.Loopback.AnswerDelay)
	}
}

func TestLoad_RedisPortRequiredWithHost(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("VOICE_ACCESS_TOKEN", "static")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for redis host without port")
	}
}

func TestLoad_OperatorsList(t *testing.T) {
	t.Setenv("BRIDGE_OPERATORS", " ops, ,support ")
	if got := optionalList("BRIDGE_OPERATORS"); len(got) != 2 || got[0] != "ops" || got[1] != "support" {
		t.Fatalf("unexpected operators: %v", got)
	}

	c := validLocal()
	c.Bridge.Operators = []string{"ops"}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ids := c.APIIdentities()
	if len(ids) != 2 || ids[0] != "alice" || ids[1] != "ops" {
		t.Fatalf("unexpected api identities: %v", ids)
	}
}
