package service

import (
	"errors"
	"fmt"

	"artwork-orders/internal/models"
)

// failureReason is the metric label for an error
func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrInvalidStateTransition):
		return "invalid_state"
	case errors.Is(err, models.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return "upstream"
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}

func asUpstream(err error) error {
	if errors.Is(err, models.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrUpstreamUnavailable, err)
}

func requireOwner(order *models.Order, actor models.Actor) error {
	if actor.ProfileID == "" || order.ProfileID != actor.ProfileID {
		return fmt.Errorf("profile %q does not own order %d: %w", actor.ProfileID, order.ID, models.ErrUnauthorized)
	}
	return nil
}

func requireStatus(order *models.Order, allowed ...string) error {
	for _, s := range allowed {
		if order.Status == s {
			return nil
		}
	}
	return fmt.Errorf("order %d is %s: %w", order.ID, order.Status, models.ErrInvalidStateTransition)
}
