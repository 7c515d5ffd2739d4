package payment

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"github.com/lossledger/lossledger/internal/config"
)

// StripeClient dispatches payouts as Stripe transfers. It implements
// service.PaymentClient.
type StripeClient struct {
	sc       *client.API
	currency string
}

func NewStripeClient(conf *config.StripeConfig) *StripeClient {
	sc := &client.API{}
	sc.Init(conf.APIKey, nil)

	currency := conf.Currency
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	return &StripeClient{
		sc:       sc,
		currency: currency,
	}
}

func (c *StripeClient) Pay(ctx context.Context, payeeIdentifier string, amount int64, destination, comment string) (string, error) {
	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(c.currency),
		Destination:   stripe.String(destination),
		TransferGroup: stripe.String(payeeIdentifier),
	}
	if comment != "" {
		params.Description = stripe.String(comment)
	}
	params.Context = ctx

	transfer, err := c.sc.Transfers.New(params)
	if err != nil {
		return "", fmt.Errorf("c.sc.Transfers.New -> %w", err)
	}

	return transfer.ID, nil
}
