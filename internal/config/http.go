package config

import "github.com/spf13/viper"

// HTTP holds [http] settings: the loopback metrics endpoint.
type HTTP struct {
	ListenAddr string
}

const cfgHTTPListenAddr = "http.listen_addr"

func init() {
	viper.SetDefault(cfgHTTPListenAddr, "127.0.0.1:9600")
}

func buildHTTPConfig() (*HTTP, error) {
	return &HTTP{ListenAddr: viper.GetString(cfgHTTPListenAddr)}, nil
}
