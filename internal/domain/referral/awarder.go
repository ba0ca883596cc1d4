package referral

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
)

// MachineCounter counts machines owned by a user inside a transaction.
type MachineCounter interface {
	CountByUserTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (int, error)
}

// LedgerEngine is the part of the money-movement engine the awarder needs.
type LedgerEngine interface {
	ExecuteTx(ctx context.Context, tx *sqlx.Tx, op ledger.Operation) (*ledger.Result, error)
	Publish(ctx context.Context, result *ledger.Result)
}

// Awarder pays the referral bonus once a referred user's first machine is
// confirmed.
type Awarder struct {
	db       *sqlx.DB
	repo     *Repository
	machines MachineCounter
	engine   LedgerEngine
	bonus    int64
}

func NewAwarder(db *sqlx.DB, repo *Repository, machines MachineCounter, engine LedgerEngine, bonus int64) *Awarder {
	return &Awarder{db: db, repo: repo, machines: machines, engine: engine, bonus: bonus}
}

// BonusKey is the idempotency key of the bonus credit for a referral.
func BonusKey(referralID uuid.UUID) string {
	return "referral:" + referralID.String()
}

// Award evaluates the referral of referredID. The status flip and the credit
// commit in one transaction; every outcome other than an error is a success.
// It is safe to call any number of times, concurrently or after a crash.
func (a *Awarder) Award(ctx context.Context, referredID uuid.UUID) (*AwardResult, error) {
	result := &AwardResult{}
	var credit *ledger.Result

	err := database.WithTx(ctx, a.db, func(tx *sqlx.Tx) error {
		*result = AwardResult{}
		credit = nil

		ref, err := a.repo.getByReferredTx(ctx, tx, referredID)
		if errors.Is(err, errNotFound) {
			result.Outcome = OutcomeNoReferral
			return nil
		}
		if err != nil {
			return err
		}
		result.ReferralID = ref.ID

		if ref.Status == StatusCompleted {
			result.Outcome = OutcomeAlreadyCompleted
			result.Bonus = ref.Bonus
			return nil
		}

		count, err := a.machines.CountByUserTx(ctx, tx, referredID)
		if err != nil {
			return err
		}
		result.MachineCount = count
		if count != 1 {
			result.Outcome = OutcomeNotEligible
			return nil
		}

		flipped, err := a.repo.completeTx(ctx, tx, ref.ID, a.bonus)
		if err != nil {
			return err
		}
		if !flipped {
			result.Outcome = OutcomeAlreadyCompleted
			return nil
		}

		credit, err = a.engine.ExecuteTx(ctx, tx, ledger.Operation{
			Key:       BonusKey(ref.ID),
			Kind:      ledger.KindMint,
			Reference: "referred:" + referredID.String(),
			Legs: []ledger.Leg{{
				AccountID: ref.ReferrerID,
				Currency:  ledger.XAF,
				Amount:    a.bonus,
				Reason:    ledger.ReasonReferralBonus,
			}},
		})
		if err != nil {
			return err
		}

		result.Outcome = OutcomeAwarded
		result.Bonus = a.bonus
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("referred_id", referredID.String()).Msg("Referral bonus check failed")
		return nil, err
	}

	if result.Outcome == OutcomeAwarded {
		a.engine.Publish(ctx, credit)
		log.Info().
			Str("referral_id", result.ReferralID.String()).
			Str("referred_id", referredID.String()).
			Int64("bonus", result.Bonus).
			Bool("credit_replayed", credit.Replayed).
			Msg("Referral bonus awarded")
	} else {
		log.Debug().
			Str("referred_id", referredID.String()).
			Str("outcome", string(result.Outcome)).
			Int("machine_count", result.MachineCount).
			Msg("Referral bonus not applicable")
	}
	return result, nil
}

// ListByReferrer returns the referrals made by a user.
func (a *Awarder) ListByReferrer(ctx context.Context, referrerID uuid.UUID) ([]Referral, error) {
	return a.repo.ListByReferrer(ctx, referrerID)
}

// SweepPending retries the award for pending referrals whose referred user
// already owns a machine. It is the follow-up for bonus checks that failed
// after a purchase was confirmed.
func (a *Awarder) SweepPending(ctx context.Context, limit int) (int, error) {
	ids, err := a.repo.ListAwardable(ctx, limit)
	if err != nil {
		return 0, err
	}

	awarded := 0
	for _, id := range ids {
		res, err := a.Award(ctx, id)
		if err != nil {
			continue
		}
		if res.Outcome == OutcomeAwarded {
			awarded++
		}
	}
	if awarded > 0 {
		log.Warn().Int("awarded", awarded).Msg("Referral sweeper paid bonuses missed by the purchase path")
	}
	return awarded, nil
}
