package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/internal/infrastructure/auth"
	"auction-sync/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) (*AuctionClient, *auth.MemoryTokenStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := auth.NewStaticTokenStore(token)
	return NewAuctionClient(NewBaseClient(srv.URL, 5*time.Second, tokens, logger.NewNop())), tokens
}

func TestGetAuction(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auctions/a1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"id":"a1","status":"active","currentPrice":"150.00","version":3,
			"bids":[{"id":"b1","amount":150,"bidderId":"u2"}]}`))
	}, "tok")

	auction, err := client.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", auction.ID)
	assert.Equal(t, domain.AuctionActive, auction.Status)
	assert.True(t, auction.CurrentPrice.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, int64(3), auction.Version)
	require.Len(t, auction.Bids, 1)
	assert.Equal(t, "u2", auction.Bids[0].BidderID)
}

func TestGetAuctionAnonymous(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"a1"}`))
	}, "")

	_, err := client.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
}

func TestListAuctionsQuery(t *testing.T) {
	tests := []struct {
		name   string
		params domain.ListParams
		query  string
	}{
		{"all status omitted", domain.ListParams{Page: 2, Limit: 10, Status: "all"}, "limit=10&page=2"},
		{"status filter", domain.ListParams{Page: 1, Limit: 5, Status: "active"}, "limit=5&page=1&status=active"},
		{"no params", domain.ListParams{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.query, r.URL.RawQuery)
				_, _ = w.Write([]byte(`{"data":[{"id":"a1"}],"meta":{"total":11,"page":1,"limit":10,"totalPages":2}}`))
			}, "")

			page, err := client.ListAuctions(context.Background(), tt.params)
			require.NoError(t, err)
			assert.Len(t, page.Data, 1)
			assert.True(t, page.HasMore())
		})
	}
}

func TestPlaceBidSendsNumericAmount(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auctions/a1/bid", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 160.5, body["amount"])
		_, _ = w.Write([]byte(`{"id":"a1","currentPrice":160.5}`))
	}, "tok")

	auction, err := client.PlaceBid(context.Background(), "a1", decimal.RequireFromString("160.5"))
	require.NoError(t, err)
	assert.Equal(t, "a1", auction.ID)
}

func TestPlaceBidWithoutTokenSkipsRequest(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, "")

	_, err := client.PlaceBid(context.Background(), "a1", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuth))
	assert.Equal(t, "Please login to place a bid", domain.UserMessage(err))
	assert.False(t, called)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    error
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"Unauthorized"}`, domain.ErrAuth, "Unauthorized"},
		{"rejection", http.StatusBadRequest, `{"message":"Bid must be higher than current price"}`,
			domain.ErrServerRejection, "Bid must be higher than current price"},
		{"message list", http.StatusBadRequest, `{"message":["amount must be a number","amount too low"]}`,
			domain.ErrServerRejection, "amount must be a number, amount too low"},
		{"no body", http.StatusInternalServerError, ``, domain.ErrServerRejection, "Failed to place bid. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, "tok")

			_, err := client.PlaceBid(context.Background(), "a1", decimal.NewFromInt(10))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind))
			assert.Equal(t, tt.message, domain.UserMessage(err))
			assert.True(t, IsStatus(err, tt.status))
		})
	}
}

func TestConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := NewAuctionClient(NewBaseClient(srv.URL, time.Second, auth.NewMemoryTokenStore(), logger.NewNop()))
	_, err := client.GetAuction(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConnection))
}

func TestLoginNormalizesAndStoresToken(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		_, _ = w.Write([]byte(`{"access_token":"jwt-1","user":{"id":"u1","email":"a@b.com"}}`))
	}, "")

	resp, err := client.Login(context.Background(), domain.Credentials{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", resp.Token)
	assert.Equal(t, "u1", resp.User.ID)

	stored, _ := tokens.GetItem(context.Background(), domain.AuthTokenKey)
	assert.Equal(t, "jwt-1", stored)
}

func TestRegisterValidatesCredentials(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}, "")

	_, err := client.Register(context.Background(), domain.Credentials{Email: "nope", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, "Please enter a valid email", domain.UserMessage(err))
}

func TestCreateAuctionValidation(t *testing.T) {
	var requests atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Lamp", body["title"])
		assert.Equal(t, float64(25), body["startingPrice"])
		_, _ = w.Write([]byte(`{"id":"a9","title":"Lamp","status":"active"}`))
	}, "tok")

	_, err := client.CreateAuction(context.Background(), domain.CreateAuctionParams{
		Title:         "Lamp",
		StartingPrice: decimal.Zero,
		EndsAt:        time.Now().Add(time.Hour),
	})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = client.CreateAuction(context.Background(), domain.CreateAuctionParams{
		Title:         "Lamp",
		StartingPrice: decimal.NewFromInt(25),
		EndsAt:        time.Now().Add(-time.Hour),
	})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, "End time must be in the future", domain.UserMessage(err))
	assert.Zero(t, requests.Load())

	auction, err := client.CreateAuction(context.Background(), domain.CreateAuctionParams{
		Title:         "Lamp",
		StartingPrice: decimal.NewFromInt(25),
		EndsAt:        time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "a9", auction.ID)
	assert.Equal(t, int32(1), requests.Load())
}

func TestGetProfileRequiresToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}, "")

	_, err := client.GetProfile(context.Background())
	assert.True(t, errors.Is(err, domain.ErrAuth))
}
