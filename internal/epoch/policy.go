package epoch

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-patronage-indexer/internal/canonical"
	"github.com/feral-file/ff-patronage-indexer/internal/domain"
)

// Policy answers the generation-specific questions the reducer asks about an event
type Policy interface {
	// Deployment returns the deployment the policy was built from
	Deployment() Deployment
	// Generation returns the contract generation
	Generation() Generation
	// StewardID returns the canonical steward id events of this deployment are recorded under
	StewardID() string
	// RecordsMint reports whether the artwork mint creates ledger records
	RecordsMint() bool
	// AllowsBuy reports whether buy events are reduced
	AllowsBuy() bool
	// SuppressCollection reports whether a collection in the given block must be ignored
	SuppressCollection(blockNumber uint64) bool
	// SuppressForeclosure reports whether a foreclosure in the given block must be ignored
	SuppressForeclosure(blockNumber uint64) bool
	// TransferSetsCurrentPatron reports whether a transfer back to the steward also resets currentPatron
	TransferSetsCurrentPatron() bool
	// ExposesForeclosureTime reports whether the steward contract may implement foreclosureTime()
	ExposesForeclosureTime() bool
	// TimeHeldOnChain reports whether timeHeld is read from the contract instead of accumulated
	TimeHeldOnChain() bool
	// ForeclosureTimeSentinel is stored when the foreclosure time cannot be read
	ForeclosureTimeSentinel() int64
}

type basePolicy struct {
	deployment Deployment
	stewardID  string
}

func (p basePolicy) Deployment() Deployment { return p.deployment }
func (p basePolicy) Generation() Generation { return p.deployment.Generation }
func (p basePolicy) StewardID() string { return p.stewardID }
func (p basePolicy) RecordsMint() bool { return true }
func (p basePolicy) AllowsBuy() bool { return true }
func (p basePolicy) SuppressCollection(uint64) bool { return false }
func (p basePolicy) SuppressForeclosure(uint64) bool { return false }
func (p basePolicy) TransferSetsCurrentPatron() bool { return false }
func (p basePolicy) ExposesForeclosureTime() bool { return true }
func (p basePolicy) TimeHeldOnChain() bool { return false }
func (p basePolicy) ForeclosureTimeSentinel() int64 { return domain.FAR_FUTURE_FORECLOSURE_TIME }

// oldDeployment can't be bought from and has no foreclosureTime().
// Once the restored deployment took over, its collections are recorded there instead.
type oldDeployment struct {
	basePolicy
}

func (p oldDeployment) AllowsBuy() bool { return false }
func (p oldDeployment) ExposesForeclosureTime() bool { return false }
func (p oldDeployment) SuppressCollection(blockNumber uint64) bool {
	return blockNumber > p.deployment.CollectionCutoffBlock
}

// restoredDeployment never minted: the artwork was carried over from the old deployment
type restoredDeployment struct {
	basePolicy
}

func (p restoredDeployment) RecordsMint() bool { return false }
func (p restoredDeployment) SuppressForeclosure(blockNumber uint64) bool {
	return blockNumber == p.deployment.SpuriousForeclosureBlock
}

type v2Deployment struct {
	basePolicy
}

func (p v2Deployment) TransferSetsCurrentPatron() bool { return true }

type onChainTimeHeldDeployment struct {
	basePolicy
}

func (p onChainTimeHeldDeployment) TransferSetsCurrentPatron() bool { return true }
func (p onChainTimeHeldDeployment) ExposesForeclosureTime() bool { return false }
func (p onChainTimeHeldDeployment) TimeHeldOnChain() bool { return true }

// NewPolicy builds the policy variant for a deployment
func NewPolicy(d Deployment, c *canonical.Canonicalizer) (Policy, error) {
	base := basePolicy{deployment: d, stewardID: c.Canonicalize(d.StewardAddress)}
	switch d.Generation {
	case GenerationOldV1:
		return oldDeployment{base}, nil
	case GenerationRestoredV1:
		return restoredDeployment{base}, nil
	case GenerationV2:
		return v2Deployment{base}, nil
	case GenerationOnChainTimeHeld:
		return onChainTimeHeldDeployment{base}, nil
	default:
		return nil, fmt.Errorf("%w: unknown generation %q", domain.ErrInvalidDeployment, d.Generation)
	}
}

// Registry resolves emitting contracts to their deployment policy
type Registry struct {
	canonicalizer *canonical.Canonicalizer
	byContract    map[string]Policy
	stewards      map[string]bool
}

// NewRegistry validates the deployment table and builds a policy per deployment
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := canonical.New(cfg.Aliases())
	if err != nil {
		return nil, err
	}

	r := &Registry{
		canonicalizer: c,
		byContract:    make(map[string]Policy),
		stewards:      make(map[string]bool),
	}
	for _, d := range cfg.Deployments {
		p, err := NewPolicy(d, c)
		if err != nil {
			return nil, err
		}
		r.byContract[domain.NormalizeAddress(d.StewardAddress)] = p
		r.byContract[domain.NormalizeAddress(d.ArtworkAddress)] = p
		r.stewards[p.StewardID()] = true
	}

	return r, nil
}

// Canonicalizer returns the canonicalizer built from the deployment aliases
func (r *Registry) Canonicalizer() *canonical.Canonicalizer {
	return r.canonicalizer
}

// PolicyFor returns the policy of the deployment owning the contract
func (r *Registry) PolicyFor(contract string) (Policy, error) {
	p, ok := r.byContract[domain.NormalizeAddress(contract)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownContract, contract)
	}
	return p, nil
}

// IsSteward reports whether the address canonicalizes to a known steward
func (r *Registry) IsSteward(address string) bool {
	return r.stewards[r.canonicalizer.Canonicalize(address)]
}

// IsStewardContract reports whether the contract is a steward (not an artwork) contract
func (r *Registry) IsStewardContract(contract string) bool {
	p, ok := r.byContract[domain.NormalizeAddress(contract)]
	if !ok {
		return false
	}
	return domain.NormalizeAddress(p.Deployment().StewardAddress) == domain.NormalizeAddress(contract)
}

// ContractAddresses returns every steward and artwork contract, sorted
func (r *Registry) ContractAddresses() []common.Address {
	keys := make([]string, 0, len(r.byContract))
	for k := range r.byContract {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	addrs := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		addrs = append(addrs, common.HexToAddress(k))
	}
	return addrs
}
