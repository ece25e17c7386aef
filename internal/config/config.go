package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the gateway needs at startup. All values come from
// the environment; a .env file is honored when present.
type Config struct {
	AppPort     string
	Environment string

	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Overridable endpoints so tests can point the client at a fake provider.
	DiscordAPIBaseURL string
	DiscordAuthURL    string
	DiscordTokenURL   string

	RequiredGuildID string
	RequiredRoleID  string
	AdminRoleID     string

	RoleCacheTTL time.Duration
	CookieMaxAge time.Duration
	CookieSecure bool
}

const (
	defaultAPIBaseURL = "https://discord.com/api/v10"
	defaultAuthURL    = "https://discord.com/oauth2/authorize"
	defaultTokenURL   = "https://discord.com/api/oauth2/token"

	defaultRoleCacheTTL = 5 * time.Minute
	defaultCookieMaxAge = 7 * 24 * time.Hour
)

// Load reads configuration from the environment. It returns an error for
// missing required fields rather than failing later on the first login.
func Load() (Config, error) {
	// Best-effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		AppPort:     getEnv("APP_PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),

		DiscordClientID:     os.Getenv("DISCORD_CLIENT_ID"),
		DiscordClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
		DiscordRedirectURI:  os.Getenv("DISCORD_REDIRECT_URI"),

		DiscordAPIBaseURL: getEnv("DISCORD_API_BASE_URL", defaultAPIBaseURL),
		DiscordAuthURL:    getEnv("DISCORD_AUTH_URL", defaultAuthURL),
		DiscordTokenURL:   getEnv("DISCORD_TOKEN_URL", defaultTokenURL),

		RequiredGuildID: os.Getenv("REQUIRED_GUILD_ID"),
		RequiredRoleID:  os.Getenv("REQUIRED_ROLE_ID"),
		AdminRoleID:     os.Getenv("ADMIN_ROLE_ID"),

		RoleCacheTTL: getDuration("ROLE_CACHE_TTL", defaultRoleCacheTTL),
		CookieMaxAge: getDuration("COOKIE_MAX_AGE", defaultCookieMaxAge),
	}

	cfg.CookieSecure = cfg.Environment == "production"

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	required := map[string]string{
		"DISCORD_CLIENT_ID":     c.DiscordClientID,
		"DISCORD_CLIENT_SECRET": c.DiscordClientSecret,
		"DISCORD_REDIRECT_URI":  c.DiscordRedirectURI,
		"REQUIRED_GUILD_ID":     c.RequiredGuildID,
		"REQUIRED_ROLE_ID":      c.RequiredRoleID,
		"ADMIN_ROLE_ID":         c.AdminRoleID,
	}

	for name, value := range required {
		if value == "" {
			return fmt.Errorf("config: missing required environment variable %s", name)
		}
	}

	if c.RoleCacheTTL <= 0 {
		return fmt.Errorf("config: ROLE_CACHE_TTL must be positive")
	}
	if c.CookieMaxAge <= 0 {
		return fmt.Errorf("config: COOKIE_MAX_AGE must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain integers are read as seconds.
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
