package account

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
)

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
	codeAttempts = 5
)

// ReferralCreator records the pending referral created at signup.
type ReferralCreator interface {
	CreatePendingTx(ctx context.Context, tx *sqlx.Tx, referrerID, referredID uuid.UUID, code string) error
}

// BalanceReader reads ledger balances.
type BalanceReader interface {
	GetBalances(ctx context.Context, accountID uuid.UUID) (map[ledger.Currency]int64, error)
}

type Service struct {
	db        *sqlx.DB
	repo      *Repository
	referrals ReferralCreator
	balances  BalanceReader
}

func NewService(db *sqlx.DB, repo *Repository, referrals ReferralCreator, balances BalanceReader) *Service {
	return &Service{db: db, repo: repo, referrals: referrals, balances: balances}
}

// Signup creates the account for userID. When referredBy names an existing
// referral code a pending referral is recorded in the same transaction.
// Calling Signup again for an existing account returns it unchanged.
func (s *Service) Signup(ctx context.Context, userID uuid.UUID, referredBy string) (*Account, error) {
	referredBy = strings.ToUpper(strings.TrimSpace(referredBy))

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := GenerateReferralCode()
		if err != nil {
			return nil, err
		}

		acc := &Account{ID: userID, ReferralCode: code}
		if referredBy != "" {
			acc.ReferredBy = sql.NullString{String: referredBy, Valid: true}
		}

		err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
			return s.signupTx(ctx, tx, acc)
		})
		if database.IsUniqueViolation(err, "accounts_referral_code_key") {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s.repo.GetByID(ctx, userID)
	}
	return nil, ErrCodeExhausted
}

func (s *Service) signupTx(ctx context.Context, tx *sqlx.Tx, acc *Account) error {
	var referrer *Account
	if acc.ReferredBy.Valid {
		r, err := s.repo.GetByReferralCodeTx(ctx, tx, acc.ReferredBy.String)
		switch {
		case errors.Is(err, ErrAccountNotFound):
			log.Warn().
				Str("user_id", acc.ID.String()).
				Str("referral_code", acc.ReferredBy.String).
				Msg("Signup with unknown referral code; no referral recorded")
			acc.ReferredBy = sql.NullString{}
		case err != nil:
			return err
		case r.ID == acc.ID:
			acc.ReferredBy = sql.NullString{}
		default:
			referrer = r
		}
	}

	created, err := s.repo.CreateTx(ctx, tx, acc)
	if err != nil || !created {
		return err
	}

	if referrer != nil {
		if err := s.referrals.CreatePendingTx(ctx, tx, referrer.ID, acc.ID, acc.ReferredBy.String); err != nil {
			return fmt.Errorf("create referral: %w", err)
		}
		log.Info().
			Str("referrer_id", referrer.ID.String()).
			Str("referred_id", acc.ID.String()).
			Msg("Referral recorded")
	}

	log.Info().Str("user_id", acc.ID.String()).Str("referral_code", acc.ReferralCode).Msg("Account created")
	return nil
}

// Get returns the account with its current balances.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Account, map[ledger.Currency]int64, error) {
	acc, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	balances, err := s.balances.GetBalances(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return acc, balances, nil
}

// SetInstantWithdrawal changes the withdrawal tier of an account.
func (s *Service) SetInstantWithdrawal(ctx context.Context, userID uuid.UUID, instant bool) error {
	if err := s.repo.SetInstantWithdrawal(ctx, userID, instant); err != nil {
		return err
	}
	log.Info().Str("user_id", userID.String()).Bool("instant_withdrawal", instant).Msg("Account tier changed")
	return nil
}

// GenerateReferralCode returns a random code from an unambiguous alphabet.
func GenerateReferralCode() (string, error) {
	var b strings.Builder
	size := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
