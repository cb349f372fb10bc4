package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ServerURL string `toml:"server_url"`
	APIKey    string `toml:"api_key"`
	DataDir   string `toml:"-"`
	DBPath    string `toml:"-"`
	HooksFile string `toml:"hooks_file"`
}

// New builds the configuration: defaults, then ~/.quarry/config.toml if
// present, then QUARRY_* environment variables on top.
func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("QUARRY_DATA_DIR", filepath.Join(homeDir, ".quarry"))

	c := &Config{
		ServerURL: "http://localhost:8080",
		DataDir:   dataDir,
		DBPath:    filepath.Join(dataDir, "quarry.db"),
	}

	tomlPath := filepath.Join(dataDir, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		if _, err := toml.DecodeFile(tomlPath, c); err != nil {
			return nil, err
		}
	}

	c.ServerURL = getEnv("QUARRY_SERVER_URL", c.ServerURL)
	c.APIKey = getEnv("QUARRY_API_KEY", c.APIKey)
	c.HooksFile = getEnv("QUARRY_HOOKS_FILE", c.HooksFile)

	return c, nil
}

func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
