package config

import "github.com/spf13/viper"

// P2P holds [p2p] settings: gossip transport, rate limits, and the
// signed peer registry policy.
type P2P struct {
	ListenAddrs   []string
	Topic         string
	MaxMsgPerSec  float64
	MaxPeersPerIP int
	Bootstrap     []string
	AllowPeers    []string

	PeerRegistryPath         string
	PeerRegistryPubkeyHex    string
	PeerRegistryMinVersion   int
	PeerRegistryMaxAgeMs     uint64
	PeerRegistryGraceMs      uint64
	PeerRegistryRequireFresh bool
}

const (
	cfgP2PListenAddr     = "p2p.listen_addr"
	cfgP2PTopic          = "p2p.topic"
	cfgP2PMaxMsgPerSec   = "p2p.max_msg_per_sec"
	cfgP2PMaxPeersPerIP  = "p2p.max_peers_per_ip"
	cfgP2PBootstrap      = "p2p.bootstrap"
	cfgP2PAllowPeers     = "p2p.allow_peers"

	cfgP2PRegistryPath         = "p2p.peer_registry_path"
	cfgP2PRegistryPubkeyHex    = "p2p.peer_registry_pubkey_hex"
	cfgP2PRegistryMinVersion   = "p2p.peer_registry_min_version"
	cfgP2PRegistryMaxAgeMs     = "p2p.peer_registry_max_age_ms"
	cfgP2PRegistryGraceMs      = "p2p.peer_registry_grace_ms"
	cfgP2PRegistryRequireFresh = "p2p.peer_registry_require_fresh"
)

func init() {
	viper.SetDefault(cfgP2PListenAddr, []string{"/ip4/0.0.0.0/tcp/4001"})
	viper.SetDefault(cfgP2PTopic, "amunchain/consensus/v1")
	viper.SetDefault(cfgP2PMaxMsgPerSec, 50.0)
	viper.SetDefault(cfgP2PMaxPeersPerIP, 4)
	viper.SetDefault(cfgP2PBootstrap, []string{})
	viper.SetDefault(cfgP2PAllowPeers, []string{})
	viper.SetDefault(cfgP2PRegistryPath, "")
	viper.SetDefault(cfgP2PRegistryPubkeyHex, "")
	viper.SetDefault(cfgP2PRegistryMinVersion, 1)
	viper.SetDefault(cfgP2PRegistryMaxAgeMs, 24*60*60*1000)
	viper.SetDefault(cfgP2PRegistryGraceMs, 60*1000)
	viper.SetDefault(cfgP2PRegistryRequireFresh, true)
}

func buildP2PConfig() (*P2P, error) {
	return &P2P{
		ListenAddrs:   viper.GetStringSlice(cfgP2PListenAddr),
		Topic:         viper.GetString(cfgP2PTopic),
		MaxMsgPerSec:  viper.GetFloat64(cfgP2PMaxMsgPerSec),
		MaxPeersPerIP: viper.GetInt(cfgP2PMaxPeersPerIP),
		Bootstrap:     viper.GetStringSlice(cfgP2PBootstrap),
		AllowPeers:    viper.GetStringSlice(cfgP2PAllowPeers),

		PeerRegistryPath:         viper.GetString(cfgP2PRegistryPath),
		PeerRegistryPubkeyHex:    viper.GetString(cfgP2PRegistryPubkeyHex),
		PeerRegistryMinVersion:   viper.GetInt(cfgP2PRegistryMinVersion),
		PeerRegistryMaxAgeMs:     viper.GetUint64(cfgP2PRegistryMaxAgeMs),
		PeerRegistryGraceMs:      viper.GetUint64(cfgP2PRegistryGraceMs),
		PeerRegistryRequireFresh: viper.GetBool(cfgP2PRegistryRequireFresh),
	}, nil
}
