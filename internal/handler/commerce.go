package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/event"
)

// HandleRefundProcessed applies a processor-side refund to the local
// ledger. The handler always re-fetches the purchase: an already-refunded
// purchase means a redelivered event, which is a no-op, not an error.
func (s *Set) HandleRefundProcessed(ctx context.Context, evt domain.Event) error {
	p, err := payload[event.RefundProcessedPayload](evt)
	if err != nil {
		return err
	}

	charge, err := s.charges.GetChargeByIdentifier(ctx, p.MerchantChargeID)
	if err != nil {
		// The ledger can lag the processor's webhook, so a missing charge
		// stays retryable.
		return fmt.Errorf("charge %s: %w", p.MerchantChargeID, err)
	}

	purchase, err := s.purchases.GetByChargeIdentifier(ctx, p.MerchantChargeID)
	if err != nil {
		// Same applies to the purchase row backed by the charge.
		return fmt.Errorf("purchase for charge %s: %w", p.MerchantChargeID, err)
	}

	if purchase.Status == domain.PurchaseStatusRefunded {
		s.log.DebugContext(ctx, "refund already applied",
			slog.String("purchase_id", purchase.ID.String()),
			slog.String("charge_id", p.MerchantChargeID),
		)
		return nil
	}

	result, err := s.merchant.ProcessRefund(ctx, p.MerchantChargeID)
	if err != nil {
		return fmt.Errorf("process refund: %w", err)
	}

	if _, err := s.purchases.MarkRefunded(ctx, purchase.ID); err != nil {
		return fmt.Errorf("mark refunded: %w", err)
	}

	s.log.InfoContext(ctx, "refund applied",
		slog.String("purchase_id", purchase.ID.String()),
		slog.String("charge_id", p.MerchantChargeID),
		slog.String("merchant_account_id", charge.MerchantAccountID.String()),
		slog.String("refund_id", result.RefundID),
		slog.Bool("already_refunded_at_processor", result.AlreadyRefunded),
	)
	return nil
}
