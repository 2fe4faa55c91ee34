package config

import "github.com/spf13/viper"

// Security holds [security] settings.
type Security struct {
	RequireSignedMessages bool
}

const cfgSecurityRequireSignedMessages = "security.require_signed_messages"

func init() {
	viper.SetDefault(cfgSecurityRequireSignedMessages, true)
}

func buildSecurityConfig() (*Security, error) {
	return &Security{RequireSignedMessages: viper.GetBool(cfgSecurityRequireSignedMessages)}, nil
}
