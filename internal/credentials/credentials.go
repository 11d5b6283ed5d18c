// Package credentials loads credentials.yaml and enforces the global
// uniqueness invariant on (exchangeName, apiKey, apiSecret).
package credentials

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"listing-sniper/internal/common"
)

// fileEntry mirrors one owner's credential block in credentials.yaml.
type fileEntry struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Secret  string `yaml:"secret_key"`
}

// rawFile is exchangeName -> owner -> entry.
type rawFile map[string]map[string]fileEntry

// ErrNotUnique is returned by CheckUnique when two credentials share the
// same (exchange, key, secret) tuple — fatal at startup per §7.6.
type ErrNotUnique struct {
	Key string
}

func (e *ErrNotUnique) Error() string {
	return fmt.Sprintf("credentials: duplicate credential for %s", e.Key)
}

// Load reads credentials.yaml and returns every enabled credential.
func Load(path string) ([]common.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}

	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("credentials: parse %s: %w", path, err)
	}

	var out []common.Credential
	for exchange, owners := range raw {
		for owner, entry := range owners {
			if !entry.Enabled {
				continue
			}
			out = append(out, common.Credential{
				Owner:        owner,
				ExchangeName: exchange,
				APIKey:       entry.APIKey,
				APISecret:    entry.Secret,
				Enabled:      true,
			})
		}
	}

	return CheckUnique(out)
}

// CheckUnique returns creds iff every (exchangeName, apiKey, apiSecret)
// tuple is distinct; otherwise it returns ErrNotUnique and the caller treats
// it as a fatal configuration error.
func CheckUnique(creds []common.Credential) ([]common.Credential, error) {
	seen := make(map[string]bool, len(creds))
	for _, c := range creds {
		k := c.Key()
		if seen[k] {
			return nil, &ErrNotUnique{Key: k}
		}
		seen[k] = true
	}
	return creds, nil
}
