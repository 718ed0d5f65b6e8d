package epoch

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
)

// Generation identifies one release of the patronage contracts
type Generation string

const (
	// GenerationOldV1 is the original deployment, later merged into the restored deployment
	GenerationOldV1 Generation = "old_v1"
	// GenerationRestoredV1 is the redeployment that took over from the original
	GenerationRestoredV1 Generation = "restored_v1"
	// GenerationV2 is the second major release
	GenerationV2 Generation = "v2"
	// GenerationOnChainTimeHeld is a steward contract that tracks timeHeld(address) itself
	GenerationOnChainTimeHeld Generation = "onchain_time_held"
)

// IsValid checks if the generation is known
func (g Generation) IsValid() bool {
	switch g {
	case GenerationOldV1, GenerationRestoredV1, GenerationV2, GenerationOnChainTimeHeld:
		return true
	}
	return false
}

// Deployment describes one steward/artwork contract pair and its cutover rules
type Deployment struct {
	Name           string     `mapstructure:"name"`
	Generation     Generation `mapstructure:"generation"`
	StewardAddress string     `mapstructure:"steward_address"`
	ArtworkAddress string     `mapstructure:"artwork_address"`
	// MergedInto is the steward address this deployment's records are folded into
	MergedInto string `mapstructure:"merged_into"`
	// CollectionCutoffBlock: collections emitted after this block are ignored
	CollectionCutoffBlock uint64 `mapstructure:"collection_cutoff_block"`
	// SpuriousForeclosureBlock: the foreclosure emitted in this block is a migration artifact
	SpuriousForeclosureBlock uint64 `mapstructure:"spurious_foreclosure_block"`
}

// Config is the full deployment table
type Config struct {
	Deployments []Deployment `mapstructure:"deployments"`
}

// Mainnet deployment addresses and cutover blocks
const (
	MainnetOldV1Steward      = "0x74e6ab057f8a9fd9355398a17579cd4c90ab2b66"
	MainnetOldV1Artwork      = "0x6d7c26f2e77d0ccc200464c8b2040c0b840b28a2"
	MainnetRestoredV1Steward = "0xb602c0bbfab973422b91c8dfc8302b7b47550fc0"
	MainnetRestoredV1Artwork = "0x2b4fa931adc5d6b58674230208787a3df0bd2121"
	MainnetV2Steward         = "0x595f2c4e9e3e35b0946394a714c2cd6875c04988"
	MainnetV2Artwork         = "0xe51a7572323040792ba69b2dc4096e8e6b22fdd4"

	// MainnetRestorationBlock is the block at which the restored deployment took over recording
	MainnetRestorationBlock uint64 = 11817708
	// MainnetRestoredMintForeclosureBlock holds the foreclosure fired while minting the restored artwork
	MainnetRestoredMintForeclosureBlock uint64 = 11815865
)

// MainnetConfig returns the deployment table for Ethereum mainnet
func MainnetConfig() Config {
	return Config{
		Deployments: []Deployment{
			{
				Name:                  "v1-old",
				Generation:            GenerationOldV1,
				StewardAddress:        MainnetOldV1Steward,
				ArtworkAddress:        MainnetOldV1Artwork,
				MergedInto:            MainnetRestoredV1Steward,
				CollectionCutoffBlock: MainnetRestorationBlock,
			},
			{
				Name:                     "v1-restored",
				Generation:               GenerationRestoredV1,
				StewardAddress:           MainnetRestoredV1Steward,
				ArtworkAddress:           MainnetRestoredV1Artwork,
				SpuriousForeclosureBlock: MainnetRestoredMintForeclosureBlock,
			},
			{
				Name:           "v2",
				Generation:     GenerationV2,
				StewardAddress: MainnetV2Steward,
				ArtworkAddress: MainnetV2Artwork,
			},
		},
	}
}

// Validate checks the deployment table for malformed or conflicting entries
func (c Config) Validate() error {
	if len(c.Deployments) == 0 {
		return fmt.Errorf("%w: no deployments configured", domain.ErrInvalidDeployment)
	}

	names := make(map[string]bool)
	contracts := make(map[string]string)
	stewards := make(map[string]bool)

	for _, d := range c.Deployments {
		if d.Name == "" {
			return fmt.Errorf("%w: deployment without name", domain.ErrInvalidDeployment)
		}
		if names[d.Name] {
			return fmt.Errorf("%w: duplicate deployment %s", domain.ErrInvalidDeployment, d.Name)
		}
		names[d.Name] = true

		if !d.Generation.IsValid() {
			return fmt.Errorf("%w: %s has unknown generation %q", domain.ErrInvalidDeployment, d.Name, d.Generation)
		}

		for _, addr := range []string{d.StewardAddress, d.ArtworkAddress} {
			if !common.IsHexAddress(addr) || domain.IsZeroAddress(addr) {
				return fmt.Errorf("%w: %s has invalid contract address %q", domain.ErrInvalidDeployment, d.Name, addr)
			}
			key := domain.NormalizeAddress(addr)
			if owner, ok := contracts[key]; ok {
				return fmt.Errorf("%w: contract %s used by %s and %s", domain.ErrInvalidDeployment, key, owner, d.Name)
			}
			contracts[key] = d.Name
		}
		stewards[domain.NormalizeAddress(d.StewardAddress)] = true

		switch d.Generation {
		case GenerationOldV1:
			if d.MergedInto == "" {
				return fmt.Errorf("%w: %s must set merged_into", domain.ErrInvalidDeployment, d.Name)
			}
			if d.CollectionCutoffBlock == 0 {
				return fmt.Errorf("%w: %s must set collection_cutoff_block", domain.ErrInvalidDeployment, d.Name)
			}
		case GenerationRestoredV1:
			if d.SpuriousForeclosureBlock == 0 {
				return fmt.Errorf("%w: %s must set spurious_foreclosure_block", domain.ErrInvalidDeployment, d.Name)
			}
		}
	}

	for _, d := range c.Deployments {
		if d.MergedInto == "" {
			continue
		}
		if !stewards[domain.NormalizeAddress(d.MergedInto)] {
			return fmt.Errorf("%w: %s is merged into %s which is not a configured steward", domain.ErrInvalidDeployment, d.Name, d.MergedInto)
		}
	}

	return nil
}

// Aliases returns the {raw: canonical} alias table implied by merged deployments
func (c Config) Aliases() map[string]string {
	aliases := make(map[string]string)
	for _, d := range c.Deployments {
		if d.MergedInto != "" {
			aliases[domain.NormalizeAddress(d.StewardAddress)] = domain.NormalizeAddress(d.MergedInto)
		}
	}
	return aliases
}
