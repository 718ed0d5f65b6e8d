package ethereum

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Event signatures emitted by steward and artwork contracts
var (
	// LogBuy(address indexed owner, uint256 indexed price)
	logBuyEventSignature = crypto.Keccak256Hash([]byte("LogBuy(address,uint256)"))

	// LogPriceChange(uint256 indexed newPrice)
	logPriceChangeEventSignature = crypto.Keccak256Hash([]byte("LogPriceChange(uint256)"))

	// LogCollection(uint256 indexed collected)
	logCollectionEventSignature = crypto.Keccak256Hash([]byte("LogCollection(uint256)"))

	// LogForeclosure(address indexed prevOwner)
	logForeclosureEventSignature = crypto.Keccak256Hash([]byte("LogForeclosure(address)"))

	// ERC721 Transfer(address indexed from, address indexed to, uint256 indexed tokenId)
	transferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

// patronageTopics is the topic0 filter matching every event the ledger consumes
func patronageTopics() [][]common.Hash {
	return [][]common.Hash{
		{
			logBuyEventSignature,
			logPriceChangeEventSignature,
			logCollectionEventSignature,
			logForeclosureEventSignature,
			transferEventSignature,
		},
	}
}
