package gate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lossledger/lossledger/internal/domain"
)

// Client talks to the token redemption service over HTTP. It implements
// service.TokenGate. The per-call deadline comes from the caller's context;
// the embedded client timeout is a backstop.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type redeemRequest struct {
	Token     string `json:"token"`
	MinAmount int64  `json:"min_amount"`
}

type redeemResponse struct {
	Decision string `json:"decision"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

func (c *Client) Redeem(ctx context.Context, token string, minAmount int64) (domain.GateResult, error) {
	body, err := json.Marshal(redeemRequest{Token: token, MinAmount: minAmount})
	if err != nil {
		return domain.GateResult{}, fmt.Errorf("json.Marshal -> %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.GateResult{}, fmt.Errorf("http.NewRequestWithContext -> %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GateResult{}, fmt.Errorf("c.httpClient.Do -> %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.GateResult{}, fmt.Errorf("gate returned status %d", resp.StatusCode)
	}

	var decoded redeemResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.GateResult{}, fmt.Errorf("json.Decode -> %w", err)
	}

	result := domain.GateResult{
		Decision: domain.GateDecision(decoded.Decision),
		Amount:   decoded.Amount,
		Reason:   decoded.Reason,
	}
	if result.Decision != domain.GateGranted {
		result.Decision = domain.GateDenied
	}
	return result, nil
}
