package service

import (
	"context"

	"artwork-orders/internal/store"
	"artwork-orders/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReferralLedger accrues commission per referral code
type ReferralLedger struct {
	percentage decimal.Decimal
	logger     *zap.Logger
}

// NewReferralLedger creates a ledger paying percentage (e.g. 10 for 10%) of an order total
func NewReferralLedger(percentage decimal.Decimal) *ReferralLedger {
	return &ReferralLedger{percentage: percentage, logger: util.GetLogger()}
}

// Commission is percentage * total / 100, rounded to two places
func (r *ReferralLedger) Commission(total decimal.Decimal) decimal.Decimal {
	return r.percentage.Mul(total).Div(decimal.NewFromInt(100)).Round(2)
}

// Credit adds amount to code's balance. An unknown code is not an error; it reports false.
func (r *ReferralLedger) Credit(ctx context.Context, repo store.Repository, code string, amount decimal.Decimal) (bool, error) {
	ctx, span := util.StartSpan(ctx, "ReferralLedger.Credit")
	defer span.End()

	if code == "" || !amount.IsPositive() {
		return false, nil
	}

	credited, err := repo.CreditReferral(ctx, code, amount)
	if err != nil {
		util.FailSpan(span, err)
		util.ReferralCreditsTotal.WithLabelValues("error").Inc()
		return false, err
	}

	if !credited {
		util.ReferralCreditsTotal.WithLabelValues("unknown_code").Inc()
		r.logger.Warn("Referral code not found, skipping credit", zap.String("code", code))
		return false, nil
	}

	util.ReferralCreditsTotal.WithLabelValues("credited").Inc()
	return true, nil
}
