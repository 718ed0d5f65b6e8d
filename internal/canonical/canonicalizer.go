package canonical

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
)

// Canonicalizer maps raw addresses onto the single address that represents the
// same logical entity across contract migrations.
// It is immutable after construction and safe for concurrent use.
type Canonicalizer struct {
	aliases map[string]string
}

// New builds a canonicalizer from a {raw: canonical} alias table.
// Chains of aliases are resolved to their final target so that
// Canonicalize is idempotent; cycles are rejected.
func New(aliases map[string]string) (*Canonicalizer, error) {
	normalized := make(map[string]string, len(aliases))
	for raw, target := range aliases {
		if !common.IsHexAddress(raw) || !common.IsHexAddress(target) {
			return nil, fmt.Errorf("%w: alias %s -> %s is not a hex address pair", domain.ErrInvalidDeployment, raw, target)
		}
		raw, target = domain.NormalizeAddress(raw), domain.NormalizeAddress(target)
		if raw == target {
			continue
		}
		normalized[raw] = target
	}

	resolved := make(map[string]string, len(normalized))
	for raw := range normalized {
		target, err := resolve(normalized, raw)
		if err != nil {
			return nil, err
		}
		resolved[raw] = target
	}

	return &Canonicalizer{aliases: resolved}, nil
}

func resolve(aliases map[string]string, raw string) (string, error) {
	seen := map[string]bool{raw: true}
	current := raw
	for {
		next, ok := aliases[current]
		if !ok {
			return current, nil
		}
		if seen[next] {
			return "", fmt.Errorf("%w: %s", domain.ErrAliasCycle, raw)
		}
		seen[next] = true
		current = next
	}
}

// Canonicalize returns the canonical, lower-case form of a raw address
func (c *Canonicalizer) Canonicalize(raw string) string {
	addr := domain.NormalizeAddress(raw)
	if target, ok := c.aliases[addr]; ok {
		return target
	}
	return addr
}

// PatronStewardID returns the composite relationship id of a patron and a steward.
// Both parts are canonicalized.
func (c *Canonicalizer) PatronStewardID(patron, steward string) string {
	return c.Canonicalize(patron) + c.Canonicalize(steward)
}

// Aliases returns a copy of the resolved alias table
func (c *Canonicalizer) Aliases() map[string]string {
	out := make(map[string]string, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out
}
