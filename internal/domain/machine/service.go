package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
)

// LedgerEngine is the part of the money-movement engine claims need.
type LedgerEngine interface {
	ExecuteTx(ctx context.Context, tx *sqlx.Tx, op ledger.Operation) (*ledger.Result, error)
	Publish(ctx context.Context, result *ledger.Result)
}

type Service struct {
	db       *sqlx.DB
	repo     *Repository
	engine   LedgerEngine
	interval time.Duration
	now      func() time.Time
}

func NewService(db *sqlx.DB, repo *Repository, engine LedgerEngine, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Service{
		db:       db,
		repo:     repo,
		engine:   engine,
		interval: interval,
		now:      time.Now,
	}
}

// ClaimKey identifies the credit for one earning window of a machine.
func ClaimKey(machineID uuid.UUID, windowStart time.Time) string {
	return fmt.Sprintf("claim:%s:%d", machineID, windowStart.Unix())
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]Machine, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Activate starts the machine's first earning window. Activating an active
// machine returns it unchanged.
func (s *Service) Activate(ctx context.Context, userID, machineID uuid.UUID) (*Machine, error) {
	at := s.clock()
	activated, err := s.repo.activate(ctx, userID, machineID, at)
	if err != nil {
		return nil, err
	}

	m, err := s.repo.GetByID(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, ErrMachineNotFound
	}
	if activated {
		log.Info().Str("machine_id", machineID.String()).Str("user_id", userID.String()).Msg("Machine activated")
	}
	return m, nil
}

// Claim credits the machine's daily ED once per window. Concurrent claims for
// the same machine serialize on the row lock; the loser sees the advanced
// window and is refused.
func (s *Service) Claim(ctx context.Context, userID, machineID uuid.UUID) (*ClaimResult, error) {
	now := s.clock()
	var (
		result *ClaimResult
		credit *ledger.Result
	)

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		m, err := s.repo.lockOwnedTx(ctx, tx, userID, machineID)
		if err != nil {
			return err
		}
		windowStart, err := checkClaim(m, now, s.interval)
		if err != nil {
			return err
		}
		mt, ok := LookupType(m.MachineType)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownType, m.MachineType)
		}

		credit, err = s.engine.ExecuteTx(ctx, tx, ledger.Operation{
			Key:       ClaimKey(m.ID, windowStart),
			Kind:      ledger.KindMint,
			Reference: "machine:" + m.ID.String(),
			Legs: []ledger.Leg{{
				AccountID: userID,
				Currency:  ledger.ED,
				Amount:    mt.DailyRateED,
				Reason:    ledger.ReasonDailyClaim,
			}},
		})
		if err != nil {
			return err
		}

		// a replayed credit means the window was paid but never recorded
		if credit.Replayed {
			log.Error().
				Str("machine_id", m.ID.String()).
				Time("window_start", windowStart).
				Msg("Claim credit already existed for an unrecorded window, recording it now")
		}
		total, err := s.repo.recordClaimTx(ctx, tx, m.ID, now, mt.DailyRateED)
		if err != nil {
			return err
		}

		balance, _ := credit.BalanceOf(userID, ledger.ED)
		result = &ClaimResult{
			MachineID:   m.ID,
			Amount:      mt.DailyRateED,
			WindowStart: windowStart,
			ClaimedAt:   now,
			NextClaimAt: now.Add(s.interval),
			TotalEarned: total,
			BalanceED:   balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.engine.Publish(ctx, credit)
	log.Info().
		Str("machine_id", machineID.String()).
		Str("user_id", userID.String()).
		Int64("amount", result.Amount).
		Msg("Daily earnings claimed")
	return result, nil
}

// clock returns the current time at the precision Postgres stores.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
