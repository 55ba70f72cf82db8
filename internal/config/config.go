package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the bridge process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Voice    VoiceConfig
	Bridge   BridgeConfig
	Loopback LoopbackConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// DBConfig is optional. An empty Host keeps the call journal in memory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. An empty Host disables the cross-device call-group cap.
type RedisConfig struct {
	Host string
	Port int
}

type VoiceConfig struct {
	AccountSID   string
	APIKeySID    string
	APIKeySecret string
	AppSID       string

	// Identity is the client identity minted into access tokens.
	Identity string
	// AccessToken, when set, is used as-is instead of minting.
	AccessToken string
	TokenTTL    time.Duration

	// CallerID is the number presented on PSTN legs dialed by the voice webhook.
	CallerID string
}

type BridgeConfig struct {
	ProviderName     string
	SpeakerOnConnect bool
	MaxCallGroups    int

	// Operators are extra identities allowed to drive /v1 besides Voice.Identity.
	Operators []string
}

// LoopbackConfig tunes the in-process voice and native collaborators.
type LoopbackConfig struct {
	RingDelay     time.Duration
	AnswerDelay   time.Duration
	ActionTimeout time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	if c.DB.Host != "" {
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Voice.AccountSID = strings.TrimSpace(os.Getenv("VOICE_ACCOUNT_SID"))
	c.Voice.APIKeySID = strings.TrimSpace(os.Getenv("VOICE_API_KEY_SID"))
	c.Voice.APIKeySecret = os.Getenv("VOICE_API_KEY_SECRET")
	c.Voice.AppSID = strings.TrimSpace(os.Getenv("VOICE_APP_SID"))
	c.Voice.Identity = strings.TrimSpace(os.Getenv("VOICE_IDENTITY"))
	c.Voice.AccessToken = strings.TrimSpace(os.Getenv("VOICE_ACCESS_TOKEN"))
	c.Voice.CallerID = strings.TrimSpace(os.Getenv("VOICE_CALLER_ID"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Voice.TokenTTL = mustDuration("VOICE_TOKEN_TTL")

	c.Bridge.ProviderName = strings.TrimSpace(os.Getenv("BRIDGE_PROVIDER_NAME"))
	c.Bridge.SpeakerOnConnect = optionalBool("BRIDGE_SPEAKER_ON_CONNECT", true)
	if v := strings.TrimSpace(os.Getenv("BRIDGE_MAX_CALL_GROUPS")); v != "" {
		n, err := mustInt("BRIDGE_MAX_CALL_GROUPS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Bridge.MaxCallGroups = n
	}

	c.Bridge.Operators = optionalList("BRIDGE_OPERATORS")

	c.Loopback.RingDelay = mustDuration("LOOPBACK_RING_DELAY")
	c.Loopback.AnswerDelay = mustDuration("LOOPBACK_ANSWER_DELAY")
	c.Loopback.ActionTimeout = mustDuration("LOOPBACK_ACTION_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host != "" {
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if c.DB.SSLMode == "" {
			if c.IsProduction() {
				errs = append(errs, errors.New("DB_SSLMODE is required in production"))
			} else {
				// Local-friendly default; production must be explicit.
				c.DB.SSLMode = "disable"
			}
		}
		if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Voice.AccessToken == "" {
		// Minting requires the full key set; a static token needs none of it.
		if c.Voice.APIKeySecret == "" {
			errs = append(errs, errors.New("VOICE_API_KEY_SECRET is required unless VOICE_ACCESS_TOKEN is set"))
		}
		if c.Voice.APIKeySID == "" {
			errs = append(errs, errors.New("VOICE_API_KEY_SID is required unless VOICE_ACCESS_TOKEN is set"))
		}
		if c.Voice.AccountSID == "" {
			errs = append(errs, errors.New("VOICE_ACCOUNT_SID is required unless VOICE_ACCESS_TOKEN is set"))
		}
	}
	if c.Voice.Identity == "" {
		c.Voice.Identity = "alice"
	}
	if c.Voice.TokenTTL <= 0 {
		c.Voice.TokenTTL = time.Hour
	}
	if c.Voice.TokenTTL > 24*time.Hour {
		errs = append(errs, errors.New("VOICE_TOKEN_TTL must not exceed 24h"))
	}

	if c.Bridge.ProviderName == "" {
		c.Bridge.ProviderName = "VoiceBridge"
	}
	if c.Bridge.MaxCallGroups == 0 {
		c.Bridge.MaxCallGroups = 1
	}
	if c.Bridge.MaxCallGroups < 0 {
		errs = append(errs, fmt.Errorf("BRIDGE_MAX_CALL_GROUPS must be positive, got %d", c.Bridge.MaxCallGroups))
	}

	if c.Loopback.RingDelay <= 0 {
		c.Loopback.RingDelay = 500 * time.Millisecond
	}
	if c.Loopback.AnswerDelay <= 0 {
		c.Loopback.AnswerDelay = 2 * time.Second
	}
	if c.Loopback.ActionTimeout <= 0 {
		c.Loopback.ActionTimeout = 10 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// APIIdentities lists the client identities allowed on the call API.
func (c Config) APIIdentities() []string {
	return append([]string{c.Voice.Identity}, c.Bridge.Operators...)
}

func (c Config) HasPostgres() bool { return c.DB.Host != "" }

func (c Config) HasRedis() bool { return c.Redis.Host != "" }

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optionalBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func optionalList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
