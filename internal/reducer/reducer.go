package reducer

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/epoch"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
	"github.com/feral-file/ff-patronage-indexer/internal/store"
)

// Outcome describes what Apply did with an event
type Outcome string

const (
	// OutcomeApplied means the reduction changed the ledger
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped means a deployment rule suppressed the event or it carried nothing to record
	OutcomeSkipped Outcome = "skipped"
	// OutcomeDuplicate means the event had already been consumed
	OutcomeDuplicate Outcome = "duplicate"
)

// Reducer applies patronage events to the ledger, one event per transaction
type Reducer struct {
	registry *epoch.Registry
	store    store.Store
	reader   StateReader
}

// New creates a reducer
func New(registry *epoch.Registry, store store.Store, reader StateReader) *Reducer {
	return &Reducer{
		registry: registry,
		store:    store,
		reader:   reader,
	}
}

// Apply reduces one event. Events of a steward must be applied in chain order.
// Malformed events fail with domain.ErrInvalidEvent, events from unconfigured contracts with
// domain.ErrUnknownContract and failed auxiliary reads with *ReadError; nothing is committed in
// either case. Contract reads are taken before the ledger transaction opens.
func (r *Reducer) Apply(ctx context.Context, event *domain.PatronageEvent) (Outcome, error) {
	if event == nil || !event.Valid() {
		return "", fmt.Errorf("%w: %+v", domain.ErrInvalidEvent, event)
	}

	policy, err := r.registry.PolicyFor(event.ContractAddress)
	if err != nil {
		return "", err
	}
	ctx = logger.WithStewardScope(ctx, policy.StewardID())

	reads, err := r.prefetch(ctx, policy, event)
	if err != nil {
		return "", err
	}

	var outcome Outcome
	err = r.store.WithTransaction(ctx, func(ledger store.Ledger) error {
		recorded, err := ledger.RecordEvent(ctx, policy.StewardID(), event)
		if err != nil {
			return err
		}
		if !recorded {
			outcome = OutcomeDuplicate
			return nil
		}

		uow := NewUnitOfWork(ledger, r.registry.Canonicalizer())
		outcome, err = r.reduce(ctx, uow, policy, event, reads)
		if err != nil {
			return err
		}
		if outcome != OutcomeApplied {
			return nil
		}
		return uow.Commit(ctx)
	})
	if err != nil {
		return "", err
	}

	logger.DebugCtx(ctx, "Reduced patronage event",
		zap.String("kind", string(event.Kind)),
		zap.String("steward", policy.StewardID()),
		zap.String("deployment", policy.Deployment().Name),
		zap.Uint64("block", event.BlockNumber),
		zap.Uint64("logIndex", event.LogIndex),
		zap.String("outcome", string(outcome)))

	return outcome, nil
}

// prefetch takes the contract reads the reduction of event will need, so retries against a slow
// node never hold the ledger transaction open. Events already journaled or suppressed by the
// deployment read nothing. The steward snapshot is the state the reduction will see, since a
// steward has a single writer.
func (r *Reducer) prefetch(ctx context.Context, policy epoch.Policy, event *domain.PatronageEvent) (*eventReads, error) {
	reads := newEventReads(r.reader, policy, event)

	recorded, err := r.store.IsEventRecorded(ctx, event)
	if err != nil {
		return nil, err
	}
	if recorded {
		return reads, nil
	}

	switch event.Kind {
	case domain.EventKindBuy:
		if !policy.AllowsBuy() {
			return reads, nil
		}
		if _, err := event.AmountValue(); err != nil {
			return reads, nil
		}
		if _, err := reads.Deposit(ctx); err != nil {
			return nil, err
		}
		if _, err := reads.ForeclosureTime(ctx); err != nil {
			return nil, err
		}

	case domain.EventKindCollection:
		if policy.SuppressCollection(event.BlockNumber) {
			return reads, nil
		}
		if _, err := event.AmountValue(); err != nil {
			return reads, nil
		}
		if policy.TimeHeldOnChain() {
			steward, err := r.store.GetSteward(ctx, policy.StewardID())
			if err != nil {
				return nil, fmt.Errorf("failed to load steward %s: %w", policy.StewardID(), err)
			}
			if steward == nil {
				steward = domain.NewSteward(policy.StewardID())
			}
			if _, err := reads.TimeHeld(ctx, collectionHolder(policy, steward)); err != nil {
				return nil, err
			}
		} else if _, err := reads.TimeLastCollected(ctx); err != nil {
			return nil, err
		}
		if _, err := reads.Deposit(ctx); err != nil {
			return nil, err
		}
		if _, err := reads.ForeclosureTime(ctx); err != nil {
			return nil, err
		}

	case domain.EventKindForeclosure:
		if policy.SuppressForeclosure(event.BlockNumber) || !policy.TimeHeldOnChain() || event.Account == nil {
			return reads, nil
		}
		if _, err := reads.TimeHeld(ctx, *event.Account); err != nil {
			return nil, err
		}
	}

	return reads, nil
}

func (r *Reducer) reduce(ctx context.Context, uow *UnitOfWork, policy epoch.Policy, event *domain.PatronageEvent, reads *eventReads) (Outcome, error) {
	switch event.Kind {
	case domain.EventKindMint, domain.EventKindTransfer:
		return r.reduceTransfer(ctx, uow, policy, event)
	case domain.EventKindBuy:
		return r.reduceBuy(ctx, uow, policy, event, reads)
	case domain.EventKindPriceChange:
		return r.reducePriceChange(ctx, uow, policy, event)
	case domain.EventKindCollection:
		return r.reduceCollection(ctx, uow, policy, event, reads)
	case domain.EventKindForeclosure:
		return r.reduceForeclosure(ctx, uow, policy, event, reads)
	default:
		return "", fmt.Errorf("%w: unsupported kind %s", domain.ErrInvalidEvent, event.Kind)
	}
}

func (r *Reducer) reduceTransfer(ctx context.Context, uow *UnitOfWork, policy epoch.Policy, event *domain.PatronageEvent) (Outcome, error) {
	from := ""
	if event.FromAddress != nil {
		from = *event.FromAddress
	}

	if event.Kind == domain.EventKindMint || domain.IsZeroAddress(from) {
		if !policy.RecordsMint() {
			logger.InfoCtx(ctx, "Ignoring mint of a carried-over artwork",
				zap.String("deployment", policy.Deployment().Name),
				zap.String("txHash", event.TxHash))
			return OutcomeSkipped, nil
		}
		return r.reduceMint(ctx, uow, policy, event)
	}

	canonicalizer := r.registry.Canonicalizer()
	if canonicalizer.Canonicalize(*event.ToAddress) != policy.StewardID() {
		// patron to patron transfers are recorded by the buy that follows
		return OutcomeSkipped, nil
	}

	steward, _, err := uow.Steward(ctx, policy.StewardID())
	if err != nil {
		return "", err
	}
	steward.PreviousPatron = canonicalizer.Canonicalize(from)
	if policy.TransferSetsCurrentPatron() {
		steward.CurrentPatron = policy.StewardID()
	}

	logger.DebugCtx(ctx, "Artwork returned to steward",
		zap.String("steward", steward.ID),
		zap.String("previousPatron", steward.PreviousPatron),
		zap.String("currentPatron", steward.CurrentPatron))

	return OutcomeApplied, nil
}

func (r *Reducer) reduceMint(ctx context.Context, uow *UnitOfWork, policy epoch.Policy, event *domain.PatronageEvent) (Outcome, error) {
	stewardID := policy.StewardID()

	steward, lookup, err := uow.Steward(ctx, stewardID)
	if err != nil {
		return "", err
	}

	// the mint establishes the first collection baseline, but must not rewind a live one
	if lookup == Created || steward.TimeLastCollected == 0 {
		steward.TimeLastCollected = event.Timestamp.Unix()
	} else {
		logger.WarnCtx(ctx, "Mint for a steward that already has a collection baseline",
			zap.String("steward", stewardID),
			zap.Int64("timeLastCollected", steward.TimeLastCollected),
			zap.String("txHash", event.TxHash))
	}

	if _, _, err := uow.PatronSteward(ctx, stewardID, stewardID); err != nil {
		return "", err
	}

	if to := r.registry.Canonicalizer().Canonicalize(*event.ToAddress); to != stewardID {
		logger.DebugCtx(ctx, "Mint recipient differs from steward",
			zap.String("steward", stewardID),
			zap.String("to", to))
	}

	return OutcomeApplied, nil
}

func (r *Reducer) reduceBuy(ctx context.Context, uow *UnitOfWork, policy epoch.Policy, event *domain.PatronageEvent, reads *eventReads) (Outcome, error) {
	if !policy.AllowsBuy() {
		logger.InfoCtx(ctx, "Ignoring buy on a deployment without purchases",
			zap.String("deployment", policy.Deployment().Name),
			zap.String("txHash", event.TxHash))
		return OutcomeSkipped, nil
	}

	price, err := event.AmountValue()
	if err != nil {
		return "", err
	}

	deposit, err := reads.Deposit(ctx)
	if err != nil {
		return "", err
	}
	foreclosureTime, err := reads.ForeclosureTime(ctx)
	if err != nil {
		return "", err
	}

	steward, _, err := uow.Steward(ctx, policy.StewardID())
	if err != nil {
		return "", err
	}
	owner := r.registry.Canonicalizer().Canonicalize(*event.Account)

	steward.CurrentPrice = price
	steward.CurrentPatron = owner
	steward.TimeAcquired = event.Timestamp.Unix()
	// a purchase out of foreclosure restarts the collection clock
	steward.TimeLastCollected = event.Timestamp.Unix()
	steward.CurrentDeposit = deposit
	steward.ForeclosureTime = foreclosureTime

	if _, _, err := uow.PatronSteward(ctx, owner, steward.ID); err != nil {
		return "", err
	}

	return OutcomeApplied, nil
}

func (r *Reducer) reducePriceChange(ctx context.Context, uow *UnitOfWork, policy epoch.Policy, event *domain.PatronageEvent) (Outcome, error) {
	price, err := event.AmountValue()
	if err != nil {
		return "", err
	}

	steward, _, err := uow.Steward(ctx, policy.StewardID())
	if err != nil {
		return "", err
	}
	steward.CurrentPrice = price

	return OutcomeApplied, nil
}

func (r *Reducer) reduceCollection(ctx context.Context, uow *UnitOfWork, policy epoch.Policy, event *domain.PatronageEvent, reads *eventReads) (Outcome, error) {
	if policy.SuppressCollection(event.BlockNumber) {
		logger.InfoCtx(ctx, "Ignoring collection recorded by the successor deployment",
			zap.String("deployment", policy.Deployment().Name),
			zap.Uint64("block", event.BlockNumber),
			zap.String("txHash", event.TxHash))
		return OutcomeSkipped, nil
	}

	collected, err := event.AmountValue()
	if err != nil {
		return "", err
	}

	steward, _, err := uow.Steward(ctx, policy.StewardID())
	if err != nil {
		return "", err
	}

	holder := collectionHolder(policy, steward)
	ps, _, err := uow.PatronSteward(ctx, holder, steward.ID)
	if err != nil {
		return "", err
	}

	priorTLC := steward.TimeLastCollected
	if policy.TimeHeldOnChain() {
		timeHeld, err := reads.TimeHeld(ctx, holder)
		if err != nil {
			return "", err
		}
		if timeHeld.Cmp(ps.TimeHeld) < 0 {
			logger.WarnCtx(ctx, "On-chain timeHeld is below the recorded value, keeping the recorded value",
				zap.String("patronSteward", ps.ID),
				zap.String("recorded", ps.TimeHeld.String()),
				zap.String("onchain", timeHeld.String()))
		} else {
			ps.TimeHeld = timeHeld
		}
		steward.TimeLastCollected = event.Timestamp.Unix()
	} else {
		freshTLC, err := reads.TimeLastCollected(ctx)
		if err != nil {
			return "", err
		}
		// the baseline only moves forward, so a stale read neither credits nor rewinds it
		delta := new(big.Int).Sub(freshTLC, big.NewInt(priorTLC))
		if delta.Sign() < 0 {
			logger.WarnCtx(ctx, "timeLastCollected moved backwards, not crediting timeHeld",
				zap.String("steward", steward.ID),
				zap.Int64("prior", priorTLC),
				zap.String("fresh", freshTLC.String()))
		} else {
			ps.TimeHeld = new(big.Int).Add(ps.TimeHeld, delta)
			steward.TimeLastCollected = freshTLC.Int64()
		}
	}

	deposit, err := reads.Deposit(ctx)
	if err != nil {
		return "", err
	}
	foreclosureTime, err := reads.ForeclosureTime(ctx)
	if err != nil {
		return "", err
	}
	steward.CurrentDeposit = deposit
	steward.ForeclosureTime = foreclosureTime

	ps.Collected = new(big.Int).Add(ps.Collected, collected)
	steward.TotalCollected = new(big.Int).Add(steward.TotalCollected, collected)

	logger.DebugCtx(ctx, "Collection",
		zap.String("steward", steward.ID),
		zap.String("holder", holder),
		zap.Int64("priorTLC", priorTLC),
		zap.Int64("freshTLC", steward.TimeLastCollected),
		zap.String("timeHeld", ps.TimeHeld.String()))

	return OutcomeApplied, nil
}

func (r *Reducer) reduceForeclosure(ctx context.Context, uow *UnitOfWork, policy epoch.Policy, event *domain.PatronageEvent, reads *eventReads) (Outcome, error) {
	if policy.SuppressForeclosure(event.BlockNumber) {
		logger.InfoCtx(ctx, "Ignoring foreclosure emitted by the artwork migration",
			zap.String("deployment", policy.Deployment().Name),
			zap.Uint64("block", event.BlockNumber),
			zap.String("txHash", event.TxHash))
		return OutcomeSkipped, nil
	}

	steward, _, err := uow.Steward(ctx, policy.StewardID())
	if err != nil {
		return "", err
	}
	// the deposit is refreshed by the collection that follows
	steward.CurrentPrice = new(big.Int)

	if policy.TimeHeldOnChain() {
		prevOwner := r.registry.Canonicalizer().Canonicalize(*event.Account)
		ps, _, err := uow.PatronSteward(ctx, prevOwner, steward.ID)
		if err != nil {
			return "", err
		}
		timeHeld, err := reads.TimeHeld(ctx, *event.Account)
		if err != nil {
			return "", err
		}
		if timeHeld.Cmp(ps.TimeHeld) > 0 {
			ps.TimeHeld = timeHeld
		}
		steward.PreviousPatron = prevOwner
		steward.CurrentPatron = steward.ID
	}

	return OutcomeApplied, nil
}

// collectionHolder is the patron a collection accrues to. Where timeHeld is read on chain the
// foreclosure hands the artwork back to the steward, so the current patron is always the holder;
// otherwise a collection after a foreclosure settles the final accrual of the previous holder.
func collectionHolder(policy epoch.Policy, steward *domain.Steward) string {
	if steward.InForeclosure() && !policy.TimeHeldOnChain() {
		return steward.PreviousPatron
	}
	return steward.CurrentPatron
}
