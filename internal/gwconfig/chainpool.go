package gwconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"elpp-gateway/internal/tapos"
)

// ChainSeed is one chain's YAML-seeded API pool, read once at startup. It is
// not hot-reloaded; a changed chains.yaml requires a restart.
type ChainSeed struct {
	ChainID           byte           `yaml:"chain_id"`
	ExpectedChainHash string         `yaml:"expected_chain_hash"`
	APIPool           []APIHostEntry `yaml:"api_pool"`
}

// APIHostEntry mirrors tapos.APIEntry's static, YAML-authored fields.
type APIHostEntry struct {
	Method string `yaml:"method"`
	Host   string `yaml:"host"`
}

// ChainsFile is the top-level shape of chains.yaml.
type ChainsFile struct {
	Chains []ChainSeed `yaml:"chains"`
}

// LoadChains reads and parses the chain-pool seed file directly via
// os.ReadFile + yaml.Unmarshal, bypassing viper entirely since this file is
// static topology data, not environment-overridable settings.
func LoadChains(path string) (*ChainsFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading chain pool file %s: %w", path, err)
	}
	var cf ChainsFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return nil, fmt.Errorf("parsing chain pool file %s: %w", path, err)
	}
	return &cf, nil
}

// ChainStates builds one tapos.ChainState per seeded chain.
func (cf *ChainsFile) ChainStates() []*tapos.ChainState {
	out := make([]*tapos.ChainState, 0, len(cf.Chains))
	for _, seed := range cf.Chains {
		pool := make([]*tapos.APIEntry, 0, len(seed.APIPool))
		for _, h := range seed.APIPool {
			pool = append(pool, &tapos.APIEntry{Method: h.Method, Host: h.Host})
		}
		out = append(out, tapos.NewChainState(seed.ChainID, seed.ExpectedChainHash, pool))
	}
	return out
}
