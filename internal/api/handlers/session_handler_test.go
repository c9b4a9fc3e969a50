package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"auction-sync/internal/domain"
	"auction-sync/internal/services"
	"auction-sync/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	state     services.SessionState
	bidErr    error
	lastBid   decimal.Decimal
	bids      int
	dismissed int
	refetches int
}

func (f *fakeSession) State() services.SessionState { return f.state }

func (f *fakeSession) SubmitBid(_ context.Context, amount decimal.Decimal) error {
	f.bids++
	f.lastBid = amount
	return f.bidErr
}

func (f *fakeSession) DismissBidError() { f.dismissed++ }

func (f *fakeSession) Refetch() { f.refetches++ }

type fakeJournal struct {
	entries []domain.JournalEntry
	limit   int
	err     error
}

func (f *fakeJournal) Record(context.Context, domain.JournalEntry) error { return nil }

func (f *fakeJournal) History(_ context.Context, _ string, limit int) ([]domain.JournalEntry, error) {
	f.limit = limit
	return f.entries, f.err
}

func newTestServer(session *fakeSession, journal domain.SyncJournal) *echo.Echo {
	e := echo.New()
	h := NewSessionHandler(session, func() string { return "connected" }, journal, "a1", logger.NewNop())
	h.Register(e)
	return e
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetState(t *testing.T) {
	session := &fakeSession{state: services.SessionState{
		Auction:   &domain.Auction{ID: "a1", CurrentPrice: decimal.NewFromInt(150), Status: domain.AuctionActive},
		Countdown: "1m 5s",
		Viewers:   3,
	}}
	e := newTestServer(session, nil)

	rec := doRequest(e, http.MethodGet, "/api/auction", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connected", body["connection"])
	assert.Equal(t, "1m 5s", body["countdown"])
	assert.Equal(t, float64(3), body["viewers"])
	auction := body["auction"].(map[string]interface{})
	assert.Equal(t, "a1", auction["id"])
}

func TestPlaceBid(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		bidErr error
		status int
		errMsg string
	}{
		{"accepted string amount", `{"amount":"160.50"}`, nil, http.StatusAccepted, ""},
		{"accepted number amount", `{"amount":160.5}`, nil, http.StatusAccepted, ""},
		{"malformed amount", `{"amount":"abc"}`, nil, http.StatusUnprocessableEntity, "Please enter a valid amount"},
		{"missing amount", `{}`, nil, http.StatusUnprocessableEntity, "Please enter a valid amount"},
		{"null amount", `{"amount":null}`, nil, http.StatusUnprocessableEntity, "Please enter a valid amount"},
		{"padded string amount", `{"amount":" 160.50 "}`, nil, http.StatusAccepted, ""},
		{"malformed body", `{"amount":`, nil, http.StatusBadRequest, "Invalid request body"},
		{"local validation", `{"amount":"10"}`,
			domain.NewValidationError("place bid", "Bid must be higher than $150.00"),
			http.StatusUnprocessableEntity, "Bid must be higher than $150.00"},
		{"server rejection", `{"amount":"160"}`,
			domain.NewServerRejection("place bid", "Auction has ended", http.StatusBadRequest),
			http.StatusConflict, "Auction has ended"},
		{"not logged in", `{"amount":"160"}`,
			domain.NewAuthError("place bid", "Please login to place a bid", 0),
			http.StatusUnauthorized, "Please login to place a bid"},
		{"closed", `{"amount":"160"}`, domain.ErrSessionClosed, http.StatusGone, "session closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &fakeSession{bidErr: tt.bidErr}
			e := newTestServer(session, nil)

			rec := doRequest(e, http.MethodPost, "/api/auction/bid", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			if tt.errMsg != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, tt.errMsg, body["error"])
				if tt.bidErr == nil {
					assert.Zero(t, session.bids, "unparseable amounts never reach the session")
				}
				return
			}
			assert.True(t, session.lastBid.Equal(decimal.RequireFromString("160.5")))
		})
	}
}

func TestDismissBidError(t *testing.T) {
	session := &fakeSession{}
	e := newTestServer(session, nil)

	rec := doRequest(e, http.MethodDelete, "/api/auction/bid/error", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, session.dismissed)
}

func TestRefresh(t *testing.T) {
	session := &fakeSession{}
	e := newTestServer(session, nil)

	rec := doRequest(e, http.MethodPost, "/api/auction/refresh", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, session.refetches)
}

func TestJournal(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		e := newTestServer(&fakeSession{}, nil)
		rec := doRequest(e, http.MethodGet, "/api/auction/journal", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("history", func(t *testing.T) {
		journal := &fakeJournal{entries: []domain.JournalEntry{
			{AuctionID: "a1", Source: "NEW_BID", Outcome: domain.OutcomeStale, Version: 2},
		}}
		e := newTestServer(&fakeSession{}, journal)

		rec := doRequest(e, http.MethodGet, "/api/auction/journal?limit=10", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 10, journal.limit)

		var entries []domain.JournalEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, domain.OutcomeStale, entries[0].Outcome)
	})

	t.Run("bad limit", func(t *testing.T) {
		e := newTestServer(&fakeSession{}, &fakeJournal{})
		rec := doRequest(e, http.MethodGet, "/api/auction/journal?limit=-1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store error", func(t *testing.T) {
		e := newTestServer(&fakeSession{}, &fakeJournal{err: errors.New("down")})
		rec := doRequest(e, http.MethodGet, "/api/auction/journal", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	e := newTestServer(&fakeSession{}, nil)
	rec := doRequest(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"auction_id":"a1"`)
}
