package dto

import (
	"math/big"
	"time"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
)

// StewardResponse represents a steward and its current holder
type StewardResponse struct {
	ID                string `json:"id"`
	CurrentPatron     string `json:"current_patron"`
	PreviousPatron    string `json:"previous_patron"`
	CurrentDeposit    string `json:"current_deposit"`
	CurrentPrice      string `json:"current_price"`
	TimeAcquired      int64  `json:"time_acquired"`
	TimeLastCollected int64  `json:"time_last_collected"`
	TotalCollected    string `json:"total_collected"`
	ForeclosureTime   int64  `json:"foreclosure_time"`
	InForeclosure     bool   `json:"in_foreclosure"`
}

// PatronStewardResponse represents the holding history of one patron on one steward
type PatronStewardResponse struct {
	ID        string `json:"id"`
	Patron    string `json:"patron"`
	Steward   string `json:"steward"`
	TimeHeld  string `json:"time_held"`
	Collected string `json:"collected"`
}

// PatronStewardListResponse is a page of patron/steward relationships
type PatronStewardListResponse struct {
	Items  []PatronStewardResponse `json:"items"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
}

// LedgerEventResponse represents a journaled patronage event
type LedgerEventResponse struct {
	Chain           domain.Chain     `json:"chain"`
	Kind            domain.EventKind `json:"kind"`
	ContractAddress string           `json:"contract_address"`
	FromAddress     *string          `json:"from_address,omitempty"`
	ToAddress       *string          `json:"to_address,omitempty"`
	Account         *string          `json:"account,omitempty"`
	Amount          *string          `json:"amount,omitempty"`
	TxHash          string           `json:"tx_hash"`
	BlockNumber     uint64           `json:"block_number"`
	LogIndex        uint64           `json:"log_index"`
	Timestamp       time.Time        `json:"timestamp"`
}

// LedgerEventListResponse is a page of journaled events in chain order
type LedgerEventListResponse struct {
	Items  []LedgerEventResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// MapStewardToDTO maps a steward to its response
func MapStewardToDTO(s *domain.Steward) *StewardResponse {
	return &StewardResponse{
		ID:                s.ID,
		CurrentPatron:     s.CurrentPatron,
		PreviousPatron:    s.PreviousPatron,
		CurrentDeposit:    bigString(s.CurrentDeposit),
		CurrentPrice:      bigString(s.CurrentPrice),
		TimeAcquired:      s.TimeAcquired,
		TimeLastCollected: s.TimeLastCollected,
		TotalCollected:    bigString(s.TotalCollected),
		ForeclosureTime:   s.ForeclosureTime,
		InForeclosure:     s.InForeclosure(),
	}
}

// MapPatronStewardsToDTO maps relationships to their responses
func MapPatronStewardsToDTO(items []*domain.PatronSteward) []PatronStewardResponse {
	result := make([]PatronStewardResponse, 0, len(items))
	for _, ps := range items {
		result = append(result, PatronStewardResponse{
			ID:        ps.ID,
			Patron:    ps.Patron,
			Steward:   ps.Steward,
			TimeHeld:  bigString(ps.TimeHeld),
			Collected: bigString(ps.Collected),
		})
	}
	return result
}

// MapLedgerEventsToDTO maps journaled events to their responses
func MapLedgerEventsToDTO(events []*domain.PatronageEvent) []LedgerEventResponse {
	result := make([]LedgerEventResponse, 0, len(events))
	for _, e := range events {
		result = append(result, LedgerEventResponse{
			Chain:           e.Chain,
			Kind:            e.Kind,
			ContractAddress: e.ContractAddress,
			FromAddress:     e.FromAddress,
			ToAddress:       e.ToAddress,
			Account:         e.Account,
			Amount:          e.Amount,
			TxHash:          e.TxHash,
			BlockNumber:     e.BlockNumber,
			LogIndex:        e.LogIndex,
			Timestamp:       e.Timestamp,
		})
	}
	return result
}
