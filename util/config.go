package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const Name = "burrow"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host     string `yaml:"host"`
		HttpPort int    `yaml:"httpPort"`
		Domain   string `yaml:"domain"`

		// Federation policy: comma-separated hostname lists. A host matches
		// an entry if equal to it or a subdomain of it.
		BlockedDomains string `yaml:"blockedDomains"`
		AllowedDomains string `yaml:"allowedDomains"`

		// Secret encrypting private keys at rest.
		KeySecret string `yaml:"keySecret"`

		// Follow acceptance: "auto", "manual" or "closed".
		FollowMode string `yaml:"followMode"`
	}
}

// ReadConf loads config.yaml from path (falling back to the embedded
// defaults), then applies BURROW_* environment overrides.
func ReadConf(path string) (*AppConfig, error) {
	c := &AppConfig{}

	if path == "" {
		path = ConfigFileName
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		buf = embeddedConfig
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	if v := os.Getenv("BURROW_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("BURROW_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("BURROW_HTTPPORT: %w", err)
		}
		c.Conf.HttpPort = port
	}
	if v := os.Getenv("BURROW_DOMAIN"); v != "" {
		c.Conf.Domain = v
	}
	if v := os.Getenv("BURROW_BLOCKED_DOMAINS"); v != "" {
		c.Conf.BlockedDomains = v
	}
	if v := os.Getenv("BURROW_ALLOWED_DOMAINS"); v != "" {
		c.Conf.AllowedDomains = v
	}
	if v := os.Getenv("BURROW_KEY_SECRET"); v != "" {
		c.Conf.KeySecret = v
	}
	if v := os.Getenv("BURROW_FOLLOW_MODE"); v != "" {
		c.Conf.FollowMode = v
	}

	if c.Conf.FollowMode == "" {
		c.Conf.FollowMode = "auto"
	}

	return c, nil
}
