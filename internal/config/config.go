// Package config loads the node's TOML configuration file via viper and
// exposes it through typed per-section accessors, mirroring the
// reference node's Cfg_<section>_<key> constant + buildXConfig() pattern.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the fully parsed, typed node configuration.
type Config struct {
	node      *Node
	http      *HTTP
	p2p       *P2P
	consensus *Consensus
	security  *Security
}

func (c *Config) Node() *Node           { return c.node }
func (c *Config) HTTP() *HTTP           { return c.http }
func (c *Config) P2P() *P2P             { return c.p2p }
func (c *Config) Consensus() *Consensus { return c.consensus }
func (c *Config) Security() *Security   { return c.security }

// Load reads and validates the TOML file at path into a Config.
func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("AMUNCHAIN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading config file")
	}

	c := &Config{}
	var err error

	if c.node, err = buildNodeConfig(); err != nil {
		return nil, errors.Wrap(err, "node config")
	}
	if c.http, err = buildHTTPConfig(); err != nil {
		return nil, errors.Wrap(err, "http config")
	}
	if c.p2p, err = buildP2PConfig(); err != nil {
		return nil, errors.Wrap(err, "p2p config")
	}
	if c.consensus, err = buildConsensusConfig(); err != nil {
		return nil, errors.Wrap(err, "consensus config")
	}
	if c.security, err = buildSecurityConfig(); err != nil {
		return nil, errors.Wrap(err, "security config")
	}

	return c, nil
}
