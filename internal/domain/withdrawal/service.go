package withdrawal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/easydollars/easydollars-api/internal/domain/account"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
)

// LedgerEngine is the part of the money-movement engine withdrawals need.
type LedgerEngine interface {
	ExecuteTx(ctx context.Context, tx *sqlx.Tx, op ledger.Operation) (*ledger.Result, error)
	Publish(ctx context.Context, result *ledger.Result)
	Balance(ctx context.Context, accountID uuid.UUID, currency ledger.Currency) (int64, error)
}

// AccountReader tells whether an account has the instant withdrawal tier.
type AccountReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

type Service struct {
	db       *sqlx.DB
	repo     *Repository
	accounts AccountReader
	engine   LedgerEngine
	min      int64
}

func NewService(db *sqlx.DB, repo *Repository, accounts AccountReader, engine LedgerEngine, minXAF int64) *Service {
	return &Service{db: db, repo: repo, accounts: accounts, engine: engine, min: minXAF}
}

// Key is the idempotency key of the debit for a withdrawal request.
func Key(id uuid.UUID) string {
	return "withdrawal:" + id.String()
}

// RequestID is the id of the withdrawal a user files under nonce.
func RequestID(userID uuid.UUID, nonce string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("withdrawal-request:"+userID.String()+":"+nonce))
}

// Request files a withdrawal. Accounts with the instant tier are approved on
// the spot; if that approval fails the request falls back to manual review.
// Filing again under the same nonce returns the first request.
func (s *Service) Request(ctx context.Context, userID uuid.UUID, req CreateRequest, nonce string) (*Request, error) {
	if nonce == "" {
		return nil, ErrMissingNonce
	}
	if req.Amount < s.min {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimum, req.Amount, s.min)
	}

	id := RequestID(userID, nonce)
	existing, err := s.repo.GetByID(ctx, id)
	switch {
	case err == nil:
		return s.resume(ctx, existing, req)
	case !errors.Is(err, ErrRequestNotFound):
		return nil, err
	}

	acc, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	balance, err := s.engine.Balance(ctx, userID, ledger.XAF)
	if err != nil {
		return nil, err
	}
	if balance < req.Amount {
		return nil, fmt.Errorf("%w: have %d XAF", ledger.ErrInsufficientFunds, balance)
	}

	w := &Request{
		ID:          id,
		UserID:      userID,
		Amount:      req.Amount,
		Method:      req.Method,
		Destination: req.Destination,
		Status:      StatusAwaitingReview,
	}
	if acc.InstantWithdrawal {
		w.Status = StatusPending
	}
	created, err := s.repo.Create(ctx, w)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.resume(ctx, existing, req)
	}

	log.Info().
		Str("withdrawal_id", w.ID.String()).
		Str("user_id", userID.String()).
		Int64("amount", w.Amount).
		Bool("instant", acc.InstantWithdrawal).
		Msg("Withdrawal requested")

	if !acc.InstantWithdrawal {
		return w, nil
	}
	return s.approveInstant(ctx, w)
}

// resume answers a repeated request. A pending request is an instant one
// whose approval never finished, so approval runs again.
func (s *Service) resume(ctx context.Context, w *Request, req CreateRequest) (*Request, error) {
	if w.Amount != req.Amount || w.Method != req.Method || w.Destination != req.Destination {
		return nil, fmt.Errorf("%w: withdrawal %s was filed with a different body", ledger.ErrConflict, w.ID)
	}
	if w.Status != StatusPending {
		return w, nil
	}
	return s.approveInstant(ctx, w)
}

func (s *Service) approveInstant(ctx context.Context, w *Request) (*Request, error) {
	approved, err := s.approve(ctx, w.ID, uuid.NullUUID{})
	if err == nil {
		return approved, nil
	}
	log.Warn().Err(err).Str("withdrawal_id", w.ID.String()).Msg("Instant withdrawal failed, queued for review")
	if err := s.repo.moveToReview(ctx, w.ID); err != nil {
		return nil, err
	}
	w.Status = StatusAwaitingReview
	return w, nil
}

// Approve debits the request amount and marks it approved. Approving an
// approved request returns it unchanged. On insufficient funds the request
// keeps its status and the error is returned.
func (s *Service) Approve(ctx context.Context, id, reviewerID uuid.UUID) (*Request, error) {
	return s.approve(ctx, id, uuid.NullUUID{UUID: reviewerID, Valid: reviewerID != uuid.Nil})
}

func (s *Service) approve(ctx context.Context, id uuid.UUID, reviewer uuid.NullUUID) (*Request, error) {
	var (
		out   *Request
		debit *ledger.Result
	)

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		w, err := s.repo.lockTx(ctx, tx, id)
		if err != nil {
			return err
		}
		switch w.Status {
		case StatusApproved:
			out = w
			return nil
		case StatusRejected:
			return fmt.Errorf("%w: request was rejected", ErrInvalidTransition)
		}

		debit, err = s.engine.ExecuteTx(ctx, tx, ledger.Operation{
			Key:       Key(w.ID),
			Kind:      ledger.KindBurn,
			Reference: w.Method + ":" + w.Destination,
			Legs: []ledger.Leg{{
				AccountID: w.UserID,
				Currency:  ledger.XAF,
				Amount:    -w.Amount,
				Reason:    ledger.ReasonWithdrawal,
			}},
		})
		if err != nil {
			return err
		}

		out, err = s.repo.approveTx(ctx, tx, w.ID, debit.OperationID, reviewer)
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			log.Warn().Str("withdrawal_id", id.String()).Msg("Withdrawal approval refused, balance too low")
		}
		return nil, err
	}

	if debit != nil {
		s.engine.Publish(ctx, debit)
		log.Info().
			Str("withdrawal_id", id.String()).
			Str("user_id", out.UserID.String()).
			Int64("amount", out.Amount).
			Str("operation_id", debit.OperationID.String()).
			Msg("Withdrawal approved")
	}
	return out, nil
}

// Reject closes an undecided request without moving money. Rejecting a
// rejected request returns it unchanged.
func (s *Service) Reject(ctx context.Context, id, reviewerID uuid.UUID, reason string) (*Request, error) {
	w, changed, err := s.repo.reject(ctx, id, reviewerID, reason)
	if err != nil {
		return nil, err
	}
	if changed {
		log.Info().Str("withdrawal_id", id.String()).Str("reviewer_id", reviewerID.String()).Msg("Withdrawal rejected")
		return w, nil
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusRejected {
		return current, nil
	}
	return nil, fmt.Errorf("%w: request is %s", ErrInvalidTransition, current.Status)
}

func (s *Service) ListPending(ctx context.Context, limit, offset int) ([]*Request, error) {
	return s.repo.ListAwaitingReview(ctx, limit, offset)
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Request, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
