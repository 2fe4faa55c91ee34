package config

import "github.com/spf13/viper"

// Node holds [node] settings.
type Node struct {
	Name    string
	DataDir string
}

const (
	cfgNodeName    = "node.name"
	cfgNodeDataDir = "node.data_dir"
)

func init() {
	viper.SetDefault(cfgNodeName, "amunchain-node")
	viper.SetDefault(cfgNodeDataDir, "./data")
}

func buildNodeConfig() (*Node, error) {
	return &Node{
		Name:    viper.GetString(cfgNodeName),
		DataDir: viper.GetString(cfgNodeDataDir),
	}, nil
}
