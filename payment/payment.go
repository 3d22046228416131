package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownPlan = errors.New("unknown plan")
	ErrDisabled    = errors.New("payment provider not configured")
)

type (
	// Plan is a paid offer. Amounts are in the smallest currency unit.
	Plan struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}

	IntentRequest struct {
		PlanID        string            `json:"planId"`
		PaymentMethod string            `json:"paymentMethodId,omitempty"`
		Metadata      map[string]string `json:"metadata,omitempty"`
	}

	// Intent is what the processor returned. The client secret is handed
	// to the front-end untouched.
	Intent struct {
		ID           string `json:"id"`
		ClientSecret string `json:"clientSecret"`
		Status       string `json:"status"`
		Amount       int64  `json:"amount"`
		Currency     string `json:"currency"`
	}

	Charge struct {
		Amount        int64
		Currency      string
		PaymentMethod string
		Metadata      map[string]string
	}

	Provider interface {
		CreateIntent(ctx context.Context, charge Charge) (*Intent, error)
	}
)

var plans = []Plan{
	{ID: "essentiel", Name: "Essentiel", Amount: 499, Currency: "eur"},
	{ID: "premium", Name: "Premium", Amount: 1299, Currency: "eur"},
	{ID: "entreprise", Name: "Entreprise", Amount: 4999, Currency: "eur"},
}

func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

func FindPlan(id string) (Plan, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// Service prices requests from the plan catalog and relays them to the
// provider. The amount is never taken from the caller.
type Service struct {
	provider Provider
}

func NewService(provider Provider) *Service {
	return &Service{provider: provider}
}

func (s *Service) CreateIntent(ctx context.Context, userID string, req IntentRequest) (*Intent, error) {
	if s == nil || s.provider == nil {
		return nil, ErrDisabled
	}
	plan, ok := FindPlan(req.PlanID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, req.PlanID)
	}

	metadata := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["plan"] = plan.ID
	if userID != "" {
		metadata["user"] = userID
	}

	return s.provider.CreateIntent(ctx, Charge{
		Amount:        plan.Amount,
		Currency:      plan.Currency,
		PaymentMethod: req.PaymentMethod,
		Metadata:      metadata,
	})
}
