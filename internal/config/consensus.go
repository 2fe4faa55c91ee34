package config

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/amunchain/amunchain/pkg/cryptography"
)

// Consensus holds [consensus] settings: the fixed validator set and
// whether Tide enforces strict epoch matching on proposals.
type Consensus struct {
	ValidatorsHex []string
	Validators    [][]byte
	RequireEpoch  bool
}

const (
	cfgConsensusValidatorsHex = "consensus.validators_hex"
	cfgConsensusRequireEpoch  = "consensus.require_epoch"
)

func init() {
	viper.SetDefault(cfgConsensusValidatorsHex, []string{})
	viper.SetDefault(cfgConsensusRequireEpoch, true)
}

func buildConsensusConfig() (*Consensus, error) {
	hexKeys := viper.GetStringSlice(cfgConsensusValidatorsHex)
	keys := make([][]byte, 0, len(hexKeys))
	for _, h := range hexKeys {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding validators_hex entry %q", h)
		}
		if len(raw) != cryptography.PubKeySize {
			return nil, errors.Errorf("validators_hex entry %q: want %d bytes, got %d", h, cryptography.PubKeySize, len(raw))
		}
		allZero := true
		for _, b := range raw {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			return nil, errors.Errorf("validators_hex entry %q is an all-zero placeholder key", h)
		}
		keys = append(keys, raw)
	}

	return &Consensus{
		ValidatorsHex: hexKeys,
		Validators:    keys,
		RequireEpoch:  viper.GetBool(cfgConsensusRequireEpoch),
	}, nil
}
