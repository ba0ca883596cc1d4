package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/easydollars/easydollars-api/internal/domain/idempotency"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/machine"
	"github.com/easydollars/easydollars-api/internal/domain/referral"
	"github.com/easydollars/easydollars-api/internal/pkg/database"
	"github.com/easydollars/easydollars-api/internal/pkg/mobilemoney"
)

// Provider creates collections with the mobile money provider
type Provider interface {
	CreatePayment(ctx context.Context, req mobilemoney.CreatePaymentRequest) (*mobilemoney.CreatePaymentResponse, error)
}

// LedgerEngine is the part of the money-movement engine purchases need
type LedgerEngine interface {
	ExecuteTx(ctx context.Context, tx *sqlx.Tx, op ledger.Operation) (*ledger.Result, error)
	Publish(ctx context.Context, result *ledger.Result)
}

// MachineStore creates ownership records inside a payment transaction
type MachineStore interface {
	CreateForPaymentTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, machineType string, paymentIntentID uuid.UUID) (bool, error)
	CreateForPurchaseTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, machineType, purchaseRef string) (bool, error)
}

// BonusAwarder pays the referral bonus after a first purchase
type BonusAwarder interface {
	Award(ctx context.Context, referredID uuid.UUID) (*referral.AwardResult, error)
}

// Registry deduplicates provider callbacks
type Registry interface {
	CheckAndReserve(ctx context.Context, key, scope, requestHash string) (*idempotency.Reservation, error)
	Complete(ctx context.Context, key string, outcome interface{}) error
	Release(ctx context.Context, key string) error
}

// Config holds the payment settings the service needs
type Config struct {
	WebhookSecret string
	CallbackURL   string
}

// Service handles machine purchases and provider callbacks
type Service struct {
	db       *sqlx.DB
	repo     Repository
	machines MachineStore
	engine   LedgerEngine
	awarder  BonusAwarder
	registry Registry
	provider Provider
	config   Config
}

// NewService creates payment service
func NewService(db *sqlx.DB, repo Repository, machines MachineStore, engine LedgerEngine, awarder BonusAwarder, registry Registry, provider Provider, cfg Config) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		machines: machines,
		engine:   engine,
		awarder:  awarder,
		registry: registry,
		provider: provider,
		config:   cfg,
	}
}

// PurchaseKey is the idempotency key of an in-app balance purchase
func PurchaseKey(userID uuid.UUID, nonce string) string {
	return fmt.Sprintf("purchase:%s:%s", userID, nonce)
}

// ExternalID is the reference the provider echoes back in its callback
func ExternalID(userID uuid.UUID, machineType, nonce string) string {
	return fmt.Sprintf("%s:%s:%s", userID, machineType, nonce)
}

// Purchase buys a machine. nonce makes client retries land on the same
// intent or ledger operation.
func (s *Service) Purchase(ctx context.Context, userID uuid.UUID, machineType string, method Method, nonce string) (*PurchaseResponse, error) {
	if nonce == "" {
		return nil, ErrMissingNonce
	}
	mt, ok := machine.LookupType(machineType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", machine.ErrUnknownType, machineType)
	}

	switch method {
	case MethodMobileMoney:
		return s.purchaseMobileMoney(ctx, userID, mt, nonce)
	case MethodBalance:
		return s.purchaseFromBalance(ctx, userID, mt, nonce)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
}

func (s *Service) purchaseMobileMoney(ctx context.Context, userID uuid.UUID, mt machine.MachineType, nonce string) (*PurchaseResponse, error) {
	intent, err := s.repo.CreateOrGet(ctx, &Intent{
		ID:          uuid.New(),
		ExternalID:  ExternalID(userID, mt.ID, nonce),
		UserID:      userID,
		MachineType: mt.ID,
		Amount:      mt.PriceXAF,
		Currency:    string(ledger.XAF),
	})
	if err != nil {
		return nil, err
	}

	resp := &PurchaseResponse{
		Method:      MethodMobileMoney,
		MachineType: mt.ID,
		Amount:      intent.Amount,
		IntentID:    &intent.ID,
		ExternalID:  intent.ExternalID,
		Status:      intent.Status,
	}
	if intent.ProviderHandle.Valid || intent.Status != StatusPending {
		resp.PaymentURL = intent.ProviderHandle.String
		resp.Replayed = true
		return resp, nil
	}

	out, err := s.provider.CreatePayment(ctx, mobilemoney.CreatePaymentRequest{
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		ExternalID:  intent.ExternalID,
		UserID:      userID.String(),
		Description: "Easy Dollars " + mt.Name,
		CallbackURL: s.config.CallbackURL,
	})
	if err != nil {
		log.Error().Err(err).Str("external_id", intent.ExternalID).Msg("Mobile money collection failed")
		return nil, fmt.Errorf("%w: payment provider unavailable", ledger.ErrTransient)
	}

	if err := s.repo.SetProviderHandle(ctx, intent.ID, out.PaymentURL); err != nil {
		return nil, err
	}
	resp.PaymentURL = out.PaymentURL

	log.Info().
		Str("user_id", userID.String()).
		Str("external_id", intent.ExternalID).
		Int64("amount", intent.Amount).
		Msg("Payment intent created")
	return resp, nil
}

func (s *Service) purchaseFromBalance(ctx context.Context, userID uuid.UUID, mt machine.MachineType, nonce string) (*PurchaseResponse, error) {
	key := PurchaseKey(userID, nonce)
	var debit *ledger.Result

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		debit, err = s.engine.ExecuteTx(ctx, tx, ledger.Operation{
			Key:       key,
			Kind:      ledger.KindBurn,
			Reference: "machine:" + mt.ID,
			Legs: []ledger.Leg{{
				AccountID: userID,
				Currency:  ledger.XAF,
				Amount:    -mt.PriceXAF,
				Reason:    ledger.ReasonPurchase,
			}},
		})
		if err != nil {
			return err
		}
		_, err = s.machines.CreateForPurchaseTx(ctx, tx, userID, mt.ID, key)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.engine.Publish(ctx, debit)
	s.awardReferral(ctx, userID)

	resp := &PurchaseResponse{
		Method:      MethodBalance,
		MachineType: mt.ID,
		Amount:      mt.PriceXAF,
		Status:      StatusSuccessful,
		Replayed:    debit.Replayed,
	}
	if balance, ok := debit.BalanceOf(userID, ledger.XAF); ok {
		resp.BalanceXAF = &balance
	}
	return resp, nil
}

// History lists the user's payment intents, newest first
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Intent, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// awardReferral runs the bonus check for a confirmed purchase. A failure is
// left to the referral sweeper.
func (s *Service) awardReferral(ctx context.Context, userID uuid.UUID) {
	if s.awarder == nil {
		return
	}
	if _, err := s.awarder.Award(ctx, userID); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Referral bonus deferred to sweeper")
	}
}
