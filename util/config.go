package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const Name = "anancus"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host              string
		HttpPort          int    `yaml:"httpPort"`
		SslDomain         string `yaml:"sslDomain"`
		WithAp            bool   `yaml:"withAp"`
		Closed            bool   `yaml:"closed"`
		DataDir           string `yaml:"dataDir"`
		CacheTTLSecs      int    `yaml:"cacheTtlSecs"`
		RemoteTimeoutSecs int    `yaml:"remoteTimeoutSecs"`
		FeedPageSize      int    `yaml:"feedPageSize"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Info().Str("path", configPath).Msg("Config file not found, using embedded defaults")
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Warn().Err(writeErr).Str("path", userConfigPath).Msg("Could not write default config")
			} else {
				log.Info().Str("path", userConfigPath).Msg("Created default config file")
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("ANANCUS_HOST")
	envHttpPort := os.Getenv("ANANCUS_HTTPPORT")
	envSslDomain := os.Getenv("ANANCUS_SSLDOMAIN")
	envWithAp := os.Getenv("ANANCUS_WITH_AP")
	envClosed := os.Getenv("ANANCUS_CLOSED")
	envDataDir := os.Getenv("ANANCUS_DATADIR")
	envCacheTTL := os.Getenv("ANANCUS_CACHE_TTL_SECS")
	envRemoteTimeout := os.Getenv("ANANCUS_REMOTE_TIMEOUT_SECS")
	envFeedPageSize := os.Getenv("ANANCUS_FEED_PAGE_SIZE")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envWithAp == "true" {
		c.Conf.WithAp = true
	}

	if envClosed == "true" {
		c.Conf.Closed = true
	}

	if envDataDir != "" {
		c.Conf.DataDir = envDataDir
	}

	if envCacheTTL != "" {
		v, err := strconv.Atoi(envCacheTTL)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.CacheTTLSecs = v
	}

	if envRemoteTimeout != "" {
		v, err := strconv.Atoi(envRemoteTimeout)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.RemoteTimeoutSecs = v
	}

	if envFeedPageSize != "" {
		v, err := strconv.Atoi(envFeedPageSize)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.FeedPageSize = v
	}

	applyDefaults(c)

	return c, nil
}

// applyDefaults fills zero-valued knobs that the config file may omit.
func applyDefaults(c *AppConfig) {
	if c.Conf.CacheTTLSecs == 0 {
		c.Conf.CacheTTLSecs = 300
	}
	if c.Conf.RemoteTimeoutSecs == 0 {
		c.Conf.RemoteTimeoutSecs = 10
	}
	if c.Conf.FeedPageSize == 0 {
		c.Conf.FeedPageSize = 20
	}
	if c.Conf.DataDir == "" {
		c.Conf.DataDir = "."
	}
}
