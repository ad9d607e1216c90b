package config

import (
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds client settings resolved from defaults, an optional .env
// file, and CAMPUS_-prefixed environment variables.
type Config struct {
	// APIHost is the backend host:port; REST lives under /api and the
	// chat socket under /ws.
	APIHost string
	// Secure switches to https/wss URLs.
	Secure bool
	// CredentialsFile is where the token pair is persisted.
	CredentialsFile string
	// DebugAddr, when set, serves /metrics and enables trace export.
	DebugAddr string
}

// Load resolves the configuration. A .env in the working directory is
// honored when present.
func Load() *Config {
	v := viper.New()
	v.SetDefault("api_host", "localhost:8000")
	v.SetDefault("secure", false)
	v.SetDefault("credentials_file", defaultCredentialsFile())
	v.SetDefault("debug_addr", "")

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("config: could not load .env: %v", err)
		}
	}

	v.SetEnvPrefix("CAMPUS")
	v.AutomaticEnv()

	return &Config{
		APIHost:         v.GetString("api_host"),
		Secure:          v.GetBool("secure"),
		CredentialsFile: v.GetString("credentials_file"),
		DebugAddr:       v.GetString("debug_addr"),
	}
}

// BaseURL returns the REST base, e.g. "http://host:port/api".
func (c *Config) BaseURL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return scheme + "://" + c.APIHost + "/api"
}

// SocketURL returns the websocket base, e.g. "ws://host:port/ws".
func (c *Config) SocketURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return scheme + "://" + c.APIHost + "/ws"
}

func defaultCredentialsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".campus-credentials.json"
	}
	return filepath.Join(home, ".config", "campus-client", "credentials.json")
}
