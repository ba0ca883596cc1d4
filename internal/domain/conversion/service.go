package conversion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/easydollars/easydollars-api/internal/domain/ledger"
)

// LedgerEngine is the part of the money-movement engine conversions need.
type LedgerEngine interface {
	Execute(ctx context.Context, op ledger.Operation) (*ledger.Result, error)
}

// Result is returned by Convert.
type Result struct {
	AmountED   int64  `json:"amount_ed"`
	AmountXAF  int64  `json:"amount_xaf"`
	Rate       string `json:"rate"`
	BalanceED  int64  `json:"balance_ed"`
	BalanceXAF int64  `json:"balance_xaf"`
	Replayed   bool   `json:"replayed,omitempty"`
}

type Service struct {
	engine LedgerEngine
	rate   decimal.Decimal
	min    int64
}

// NewService creates a converter paying rate XAF per ED for amounts of at
// least minED.
func NewService(engine LedgerEngine, rate decimal.Decimal, minED int64) *Service {
	return &Service{engine: engine, rate: rate, min: minED}
}

// Key is the idempotency key of one conversion request.
func Key(userID uuid.UUID, nonce string) string {
	return fmt.Sprintf("convert:%s:%s", userID, nonce)
}

// Quote returns the XAF credited for amountED, rounded down.
func (s *Service) Quote(amountED int64) int64 {
	return s.rate.Mul(decimal.NewFromInt(amountED)).Floor().IntPart()
}

// Convert exchanges amountED ED for XAF at the configured rate. The debit and
// the credit are one ledger operation.
func (s *Service) Convert(ctx context.Context, userID uuid.UUID, amountED int64, nonce string) (*Result, error) {
	if nonce == "" {
		return nil, ErrMissingNonce
	}
	if amountED < s.min {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimum, amountED, s.min)
	}
	credit := s.Quote(amountED)
	if credit <= 0 {
		return nil, fmt.Errorf("%w: %d ED is worth nothing at rate %s", ErrBelowMinimum, amountED, s.rate)
	}

	// funds are checked by the engine under lock, after the key lookup
	res, err := s.engine.Execute(ctx, ledger.Operation{
		Key:       Key(userID, nonce),
		Kind:      ledger.KindExchange,
		Reference: "rate:" + s.rate.String(),
		Legs: []ledger.Leg{
			{AccountID: userID, Currency: ledger.ED, Amount: -amountED, Reason: ledger.ReasonConversionDebit},
			{AccountID: userID, Currency: ledger.XAF, Amount: credit, Reason: ledger.ReasonConversionCredit},
		},
	})
	if err != nil {
		return nil, err
	}

	out := &Result{
		AmountED:  amountED,
		AmountXAF: credit,
		Rate:      s.rate.String(),
		Replayed:  res.Replayed,
	}
	out.BalanceED, _ = res.BalanceOf(userID, ledger.ED)
	out.BalanceXAF, _ = res.BalanceOf(userID, ledger.XAF)

	log.Info().
		Str("user_id", userID.String()).
		Int64("amount_ed", amountED).
		Int64("amount_xaf", credit).
		Bool("replayed", res.Replayed).
		Msg("Tokens converted")
	return out, nil
}
