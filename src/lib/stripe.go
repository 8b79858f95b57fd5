package lib

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"raffles/src/config"
	"raffles/src/types"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var stripeClient *stripe.Client

func GetStripeClient() *stripe.Client {
	if stripeClient != nil {
		return stripeClient
	}
	sc := stripe.NewClient(config.Get().StripeSecretKey)
	stripeClient = sc

	return sc
}

func NewStripeClient(c *stripe.Client) {
	stripeClient = c
}

// StripeProvider charges orders through Stripe PaymentIntents with the pix method.
type StripeProvider struct {
	client        *stripe.Client
	webhookSecret string
}

func NewStripeProvider(c *stripe.Client, webhookSecret string) *StripeProvider {
	return &StripeProvider{client: c, webhookSecret: webhookSecret}
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

func (p *StripeProvider) CreatePixPayment(ctx context.Context, req types.PixPaymentRequest) (*types.PixPayment, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:             stripe.Int64(int64(math.Round(req.Amount * 100))),
		Currency:           stripe.String(string(stripe.CurrencyBRL)),
		PaymentMethodTypes: stripe.StringSlice([]string{"pix"}),
		Description:        stripe.String(req.Description),
		Confirm:            stripe.Bool(true),
		PaymentMethodData: &stripe.PaymentIntentCreatePaymentMethodDataParams{
			Type: stripe.String("pix"),
		},
		PaymentMethodOptions: &stripe.PaymentIntentCreatePaymentMethodOptionsParams{
			Pix: &stripe.PaymentIntentCreatePaymentMethodOptionsPixParams{
				ExpiresAt: stripe.Int64(req.ExpiresAt.Unix()),
			},
		},
		Metadata: map[string]string{"order_id": req.ExternalReference},
	}
	if req.PayerEmail != "" {
		params.ReceiptEmail = stripe.String(req.PayerEmail)
	}
	params.SetIdempotencyKey(req.ExternalReference)

	pi, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		log.Printf("[Stripe] Error creating PaymentIntent for %s: %s\n", req.ExternalReference, err.Error())
		return nil, err
	}
	payment := &types.PixPayment{
		ID:     pi.ID,
		Status: stripeStatus(pi.Status),
	}
	if pi.NextAction != nil && pi.NextAction.PixDisplayQRCode != nil {
		payment.QRCode = pi.NextAction.PixDisplayQRCode.Data
		payment.TicketURL = pi.NextAction.PixDisplayQRCode.HostedInstructionsURL
	}
	return payment, nil
}

func (p *StripeProvider) GetPayment(ctx context.Context, id string) (*types.PaymentDetails, error) {
	pi, err := p.client.V1PaymentIntents.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, err
	}
	return &types.PaymentDetails{
		ID:                pi.ID,
		Status:            stripeStatus(pi.Status),
		ExternalReference: pi.Metadata["order_id"],
		Amount:            float64(pi.Amount) / 100,
	}, nil
}

// ParseWebhook verifies a Stripe webhook and returns the PaymentIntent id it concerns.
// Events other than payment_intent.* yield an empty id.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (string, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", err
	}
	log.Printf("[StripeEvent] %s\n", event.Type)
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return "", fmt.Errorf("parsing PaymentIntent: %w", err)
		}
		return pi.ID, nil
	}
	return "", nil
}

func stripeStatus(s stripe.PaymentIntentStatus) types.PaymentStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return types.PAYMENT_APPROVED
	case stripe.PaymentIntentStatusCanceled:
		return types.PAYMENT_CANCELLED
	}
	return types.PAYMENT_PENDING
}
