package payment

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider creates Stripe payment intents.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, charge Charge) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(charge.Amount),
		Currency: stripe.String(charge.Currency),
	}
	params.Context = ctx
	if charge.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(charge.PaymentMethod)
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	for k, v := range charge.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		logrus.WithError(err).WithField("amount", charge.Amount).Error("Stripe rejected payment intent")
		return nil, fmt.Errorf("creating payment intent: %w", err)
	}

	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}
