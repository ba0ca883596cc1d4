package ledger

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type balanceKey struct {
	AccountID uuid.UUID
	Currency  Currency
}

func (k balanceKey) String() string {
	return k.AccountID.String() + "/" + string(k.Currency)
}

// validate checks the shape of op against the invariant of its kind.
func validate(op Operation) error {
	if op.Key == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidOperation)
	}
	if len(op.Legs) == 0 {
		return fmt.Errorf("%w: no legs", ErrInvalidOperation)
	}

	seen := make(map[balanceKey]bool, len(op.Legs))
	for i, leg := range op.Legs {
		switch {
		case leg.AccountID == uuid.Nil:
			return fmt.Errorf("%w: leg %d has no account", ErrInvalidOperation, i)
		case !leg.Currency.Valid():
			return fmt.Errorf("%w: leg %d has unknown currency %q", ErrInvalidOperation, i, leg.Currency)
		case leg.Amount == 0:
			return fmt.Errorf("%w: leg %d has zero amount", ErrInvalidOperation, i)
		case leg.Reason == "":
			return fmt.Errorf("%w: leg %d has no reason", ErrInvalidOperation, i)
		}
		k := balanceKey{leg.AccountID, leg.Currency}
		if seen[k] {
			return fmt.Errorf("%w: balance %s appears twice", ErrInvalidOperation, k)
		}
		seen[k] = true
	}

	switch op.Kind {
	case KindMint:
		for i, leg := range op.Legs {
			if leg.Amount < 0 {
				return fmt.Errorf("%w: mint leg %d is a debit", ErrInvalidOperation, i)
			}
		}
	case KindBurn:
		for i, leg := range op.Legs {
			if leg.Amount > 0 {
				return fmt.Errorf("%w: burn leg %d is a credit", ErrInvalidOperation, i)
			}
		}
	case KindExchange:
		if len(op.Legs) != 2 {
			return fmt.Errorf("%w: exchange needs exactly two legs", ErrInvalidOperation)
		}
		a, b := op.Legs[0], op.Legs[1]
		if a.AccountID != b.AccountID || a.Currency == b.Currency || (a.Amount > 0) == (b.Amount > 0) {
			return fmt.Errorf("%w: exchange must debit one currency and credit another on one account", ErrInvalidOperation)
		}
	case KindTransfer:
		if len(op.Legs) < 2 {
			return fmt.Errorf("%w: transfer needs at least two legs", ErrInvalidOperation)
		}
		sums := make(map[Currency]int64)
		for _, leg := range op.Legs {
			sums[leg.Currency] += leg.Amount
		}
		for c, sum := range sums {
			if sum != 0 {
				return fmt.Errorf("%w: transfer legs in %s sum to %d", ErrInvalidOperation, c, sum)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
	return nil
}

// lockOrder returns the balances touched by legs sorted so that every
// transaction locks rows in the same order.
func lockOrder(legs []Leg) []balanceKey {
	keys := make([]balanceKey, 0, len(legs))
	for _, leg := range legs {
		keys = append(keys, balanceKey{leg.AccountID, leg.Currency})
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := compareUUID(keys[i].AccountID, keys[j].AccountID); c != 0 {
			return c < 0
		}
		return keys[i].Currency < keys[j].Currency
	})
	return keys
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// plan applies legs to current balances and returns the resulting balances.
// It fails with ErrInsufficientFunds if any balance would go negative.
func plan(current map[balanceKey]int64, legs []Leg) (map[balanceKey]int64, error) {
	next := make(map[balanceKey]int64, len(legs))
	for _, leg := range legs {
		k := balanceKey{leg.AccountID, leg.Currency}
		bal, ok := next[k]
		if !ok {
			bal = current[k]
		}
		bal += leg.Amount
		if bal < 0 {
			return nil, fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, k.Currency, current[k], -leg.Amount)
		}
		next[k] = bal
	}
	return next, nil
}

// entryKey derives the per-leg idempotency key from the operation key.
func entryKey(opKey string, i int) string {
	return fmt.Sprintf("%s#%d", opKey, i)
}
