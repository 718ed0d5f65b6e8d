package store

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/store/schema"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	// numeric columns may come back as "123" or "123.0" depending on the driver path
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func stewardToSchema(s *domain.Steward) schema.Steward {
	return schema.Steward{
		ID:                s.ID,
		CurrentPatron:     s.CurrentPatron,
		PreviousPatron:    s.PreviousPatron,
		CurrentDeposit:    formatAmount(s.CurrentDeposit),
		CurrentPrice:      formatAmount(s.CurrentPrice),
		TimeAcquired:      s.TimeAcquired,
		TimeLastCollected: s.TimeLastCollected,
		TotalCollected:    formatAmount(s.TotalCollected),
		ForeclosureTime:   s.ForeclosureTime,
	}
}

func stewardFromSchema(s *schema.Steward) (*domain.Steward, error) {
	deposit, err := parseAmount(s.CurrentDeposit)
	if err != nil {
		return nil, fmt.Errorf("steward %s current_deposit: %w", s.ID, err)
	}
	price, err := parseAmount(s.CurrentPrice)
	if err != nil {
		return nil, fmt.Errorf("steward %s current_price: %w", s.ID, err)
	}
	total, err := parseAmount(s.TotalCollected)
	if err != nil {
		return nil, fmt.Errorf("steward %s total_collected: %w", s.ID, err)
	}

	return &domain.Steward{
		ID:                s.ID,
		CurrentPatron:     s.CurrentPatron,
		PreviousPatron:    s.PreviousPatron,
		CurrentDeposit:    deposit,
		CurrentPrice:      price,
		TimeAcquired:      s.TimeAcquired,
		TimeLastCollected: s.TimeLastCollected,
		TotalCollected:    total,
		ForeclosureTime:   s.ForeclosureTime,
	}, nil
}

func patronStewardToSchema(ps *domain.PatronSteward) schema.PatronSteward {
	return schema.PatronSteward{
		ID:        ps.ID,
		PatronID:  ps.Patron,
		StewardID: ps.Steward,
		TimeHeld:  formatAmount(ps.TimeHeld),
		Collected: formatAmount(ps.Collected),
	}
}

func patronStewardFromSchema(ps *schema.PatronSteward) (*domain.PatronSteward, error) {
	timeHeld, err := parseAmount(ps.TimeHeld)
	if err != nil {
		return nil, fmt.Errorf("patron steward %s time_held: %w", ps.ID, err)
	}
	collected, err := parseAmount(ps.Collected)
	if err != nil {
		return nil, fmt.Errorf("patron steward %s collected: %w", ps.ID, err)
	}

	return &domain.PatronSteward{
		ID:        ps.ID,
		Patron:    ps.PatronID,
		Steward:   ps.StewardID,
		TimeHeld:  timeHeld,
		Collected: collected,
	}, nil
}

func ledgerEventToSchema(stewardID string, e *domain.PatronageEvent) (schema.LedgerEvent, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return schema.LedgerEvent{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return schema.LedgerEvent{
		Chain:           e.Chain,
		TxHash:          strings.ToLower(e.TxHash),
		LogIndex:        e.LogIndex,
		Kind:            e.Kind,
		ContractAddress: domain.NormalizeAddress(e.ContractAddress),
		StewardID:       stewardID,
		BlockNumber:     e.BlockNumber,
		Timestamp:       e.Timestamp.UTC(),
		Raw:             raw,
	}, nil
}

func ledgerEventFromSchema(e *schema.LedgerEvent) (*domain.PatronageEvent, error) {
	var event domain.PatronageEvent
	if err := json.Unmarshal(e.Raw, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger event %d: %w", e.ID, err)
	}
	return &event, nil
}
