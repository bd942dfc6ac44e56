package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/steveyegge/vcwatch/internal/ai"
)

// Provider returns a value or "" when it has none.
type Provider func() string

// Resolve tries providers in order and returns the first non-empty value.
func Resolve(providers ...Provider) string {
	for _, p := range providers {
		if v := strings.TrimSpace(p()); v != "" {
			return v
		}
	}
	return ""
}

// Value provides a fixed value, typically from the config file.
func Value(v string) Provider {
	return func() string { return v }
}

// Env provides the first set variable among keys.
func Env(keys ...string) Provider {
	return func() string {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				return v
			}
		}
		return ""
	}
}

// DotEnv provides the first of keys found in a .env file. Unreadable files
// provide nothing.
func DotEnv(path string, keys ...string) Provider {
	return func() string {
		vars, err := godotenv.Read(path)
		if err != nil {
			return ""
		}
		for _, k := range keys {
			if v := vars[k]; v != "" {
				return v
			}
		}
		return ""
	}
}

// Credentials resolves the completion-service key and endpoint through the
// chain: explicit config value, process environment, then .env files.
type Credentials struct {
	// DotEnvFiles are searched in order after the environment.
	DotEnvFiles []string
}

// DefaultCredentials searches ./.env then ~/.vcwatch/.env.
func DefaultCredentials() *Credentials {
	files := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".vcwatch", ".env"))
	}
	return &Credentials{DotEnvFiles: files}
}

func (c *Credentials) chain(explicit string, keys ...string) string {
	providers := []Provider{Value(explicit), Env(keys...)}
	if c != nil {
		for _, f := range c.DotEnvFiles {
			providers = append(providers, DotEnv(f, keys...))
		}
	}
	return Resolve(providers...)
}

// APIKey resolves the API key for provider.
func (c *Credentials) APIKey(provider, explicit string) string {
	if strings.EqualFold(provider, ai.ProviderOpenAI) {
		return c.chain(explicit, "VCWATCH_API_KEY", "OPENAI_API_KEY")
	}
	return c.chain(explicit, "VCWATCH_API_KEY", "ANTHROPIC_API_KEY")
}

// BaseURL resolves the endpoint override for provider.
func (c *Credentials) BaseURL(provider, explicit string) string {
	if strings.EqualFold(provider, ai.ProviderOpenAI) {
		return c.chain(explicit, "VCWATCH_BASE_URL", "OPENAI_BASE_URL")
	}
	return c.chain(explicit, "VCWATCH_BASE_URL", "ANTHROPIC_BASE_URL")
}
