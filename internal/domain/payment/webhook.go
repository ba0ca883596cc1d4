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
	"github.com/easydollars/easydollars-api/internal/pkg/database"
	"github.com/easydollars/easydollars-api/internal/pkg/mobilemoney"
)

const webhookScope = "webhook"

// WebhookKey identifies one provider transaction
func WebhookKey(transactionID string) string {
	return "webhook:" + transactionID
}

// HandleWebhook processes a provider callback. Redelivery of an already
// processed callback returns the stored outcome marked as duplicate.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookOutcome, error) {
	if s.config.WebhookSecret == "" {
		log.Warn().Msg("Payment webhook accepted without signature check: PAYMENT_WEBHOOK_SECRET is not set")
	} else if !mobilemoney.VerifySignature(body, signature, s.config.WebhookSecret) {
		log.Error().Bool("signature_present", signature != "").Msg("Payment webhook signature mismatch, possible forged callback")
		return nil, ErrInvalidSignature
	}

	cb, err := mobilemoney.ParseCallback(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	key := WebhookKey(cb.TransactionID)
	reservation, err := s.registry.CheckAndReserve(ctx, key, webhookScope, idempotency.Hash(cb))
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		return nil, ErrCallbackInProgress
	case errors.Is(err, idempotency.ErrConflict):
		log.Error().Str("transaction_id", cb.TransactionID).Msg("Provider resent a transaction with a different payload")
		return nil, fmt.Errorf("%w: transaction %s", ErrPayloadMismatch, cb.TransactionID)
	case err != nil:
		return nil, err
	}

	if reservation.Replayed {
		var outcome WebhookOutcome
		if err := reservation.Decode(&outcome); err != nil {
			return nil, err
		}
		if outcome.Rejected != "" {
			return nil, replayRejection(&outcome)
		}
		outcome.Received = true
		outcome.Duplicate = true
		return &outcome, nil
	}

	userID, err := s.settle(ctx, cb, body)
	if err != nil {
		if rejected(err) {
			log.Warn().Err(err).Str("transaction_id", cb.TransactionID).Str("external_id", cb.ExternalID).Msg("Payment callback rejected")
			outcome := &WebhookOutcome{Received: true, Status: cb.Status, Rejected: err.Error(), Code: rejectionCode(err)}
			if cerr := s.registry.Complete(ctx, key, outcome); cerr != nil {
				log.Error().Err(cerr).Str("key", key).Msg("Failed to record rejected callback")
			}
			return nil, err
		}
		if rerr := s.registry.Release(ctx, key); rerr != nil {
			log.Error().Err(rerr).Str("key", key).Msg("Failed to release callback key")
		}
		return nil, err
	}

	if cb.Status == mobilemoney.StatusSuccessful {
		s.awardReferral(ctx, userID)
	}

	outcome := &WebhookOutcome{Received: true, Status: cb.Status}
	if err := s.registry.Complete(ctx, key, outcome); err != nil {
		// the settlement is committed; a redelivery reclaims the key and settles as a no-op
		log.Error().Err(err).Str("key", key).Msg("Failed to complete callback key")
	}

	log.Info().
		Str("transaction_id", cb.TransactionID).
		Str("external_id", cb.ExternalID).
		Str("status", cb.Status).
		Int64("amount", cb.Amount).
		Msg("Payment callback processed")
	return outcome, nil
}

// settle moves the intent out of pending and, for a successful payment,
// creates the ownership record in the same transaction. Settling an intent
// that the same provider transaction already settled is a no-op.
func (s *Service) settle(ctx context.Context, cb *mobilemoney.Callback, raw []byte) (uuid.UUID, error) {
	var userID uuid.UUID
	target := Status(cb.Status)

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		intent, err := s.repo.GetByExternalIDForUpdate(ctx, tx, cb.ExternalID)
		if err != nil {
			return err
		}
		userID = intent.UserID

		if cb.UserID != "" {
			if id, err := uuid.Parse(cb.UserID); err != nil || id != intent.UserID {
				return fmt.Errorf("%w: user %s", ErrPayloadMismatch, cb.UserID)
			}
		}
		if target == StatusSuccessful && cb.Amount != intent.Amount {
			return fmt.Errorf("%w: amount %d, expected %d", ErrPayloadMismatch, cb.Amount, intent.Amount)
		}

		switch intent.Status {
		case StatusPending:
			if _, err := s.repo.Settle(ctx, tx, intent.ID, target, cb.TransactionID, raw); err != nil {
				return err
			}
		case target:
			if intent.ProviderTxID.Valid && intent.ProviderTxID.String != cb.TransactionID {
				return fmt.Errorf("%w: already %s by transaction %s", ErrInvalidTransition, intent.Status, intent.ProviderTxID.String)
			}
		default:
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, intent.Status, target)
		}

		if target != StatusSuccessful {
			return nil
		}
		created, err := s.machines.CreateForPaymentTx(ctx, tx, intent.UserID, intent.MachineType, intent.ID)
		if err != nil {
			return err
		}
		if created {
			log.Info().
				Str("user_id", intent.UserID.String()).
				Str("machine_type", intent.MachineType).
				Str("intent_id", intent.ID.String()).
				Msg("Machine ownership recorded")
		}
		return nil
	})
	return userID, err
}

func rejected(err error) bool {
	return errors.Is(err, ErrIntentNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ledger.ErrConflict)
}

const (
	codeIntentNotFound    = "intent_not_found"
	codeInvalidTransition = "invalid_transition"
	codePayloadMismatch   = "payload_mismatch"
)

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrIntentNotFound):
		return codeIntentNotFound
	case errors.Is(err, ErrInvalidTransition):
		return codeInvalidTransition
	default:
		return codePayloadMismatch
	}
}

// replayRejection rebuilds the error a rejected callback got the first time,
// so a redelivery is answered with the same status.
func replayRejection(outcome *WebhookOutcome) error {
	sentinel := ErrPayloadMismatch
	switch outcome.Code {
	case codeIntentNotFound:
		sentinel = ErrIntentNotFound
	case codeInvalidTransition:
		sentinel = ErrInvalidTransition
	}
	return fmt.Errorf("%w (redelivered): %s", sentinel, outcome.Rejected)
}
