package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lossledger/lossledger/internal/domain"
)

func TestClient_RedeemGranted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req redeemRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "token-1", req.Token)
		require.Equal(t, int64(50), req.MinAmount)

		json.NewEncoder(w).Encode(redeemResponse{Decision: "GRANTED", Amount: 200})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	result, err := c.Redeem(context.Background(), "token-1", 50)
	require.NoError(t, err)
	require.Equal(t, domain.GateGranted, result.Decision)
	require.Equal(t, int64(200), result.Amount)
}

func TestClient_RedeemNormalizesUnknownDecisions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(redeemResponse{Decision: "MAYBE", Reason: "odd reply"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	result, err := c.Redeem(context.Background(), "token-1", 0)
	require.NoError(t, err)
	require.Equal(t, domain.GateDenied, result.Decision)
	require.Equal(t, "odd reply", result.Reason)
}

func TestClient_RedeemNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)

	_, err := c.Redeem(context.Background(), "token-1", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestClient_RedeemHonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(redeemResponse{Decision: "GRANTED"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Redeem(ctx, "token-1", 0)
	require.Error(t, err)
}
