package prerequisite

import (
	"context"
	"fmt"
	"strings"
)

// DeploymentMode selects how the pricing-aware evaluator treats paid courses.
type DeploymentMode string

const (
	// ModeInternal is a corporate deployment where every course is free.
	ModeInternal   DeploymentMode = "internal"
	ModeCommercial DeploymentMode = "commercial"
)

// ParseDeploymentMode accepts "internal" or "commercial" in any case.
func ParseDeploymentMode(s string) (DeploymentMode, error) {
	switch m := DeploymentMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeInternal, ModeCommercial:
		return m, nil
	default:
		return "", fmt.Errorf("unknown deployment mode %q", s)
	}
}

// PaymentVerifier confirms that a user paid for a course.
type PaymentVerifier interface {
	HasPaid(ctx context.Context, userID, courseID string) (bool, error)
}

// PricingAware gates paid courses behind a confirmed payment in commercial
// deployments. It does not look at positions.
type PricingAware struct {
	mode     DeploymentMode
	payments PaymentVerifier
}

// NewPricingAware creates the evaluator. payments may be nil in internal mode.
func NewPricingAware(mode DeploymentMode, payments PaymentVerifier) PricingAware {
	return PricingAware{mode: mode, payments: payments}
}

func (PricingAware) Name() string { return PricingAwareName }

func (p PricingAware) Evaluate(ctx context.Context, in Input) (Result, error) {
	if p.mode != ModeCommercial {
		return met(ReasonInternal), nil
	}
	target, ok := in.Path.Course(in.CourseID)
	if !ok {
		return notMet(ReasonNotInPath), nil
	}
	if target.CoursePrice <= 0 {
		return met(ReasonFree), nil
	}
	if p.payments == nil {
		return notMet(ReasonPayment), nil
	}
	paid, err := p.payments.HasPaid(ctx, in.Enrollment.UserID, target.CourseID)
	if err != nil {
		return Result{}, fmt.Errorf("verify payment for course %s: %w", target.CourseID, err)
	}
	if !paid {
		return notMet(ReasonPayment), nil
	}
	return met(ReasonPaid), nil
}
