package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/internal/services"
	"auction-sync/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// SessionView is the part of an auction session the control API drives.
type SessionView interface {
	State() services.SessionState
	SubmitBid(ctx context.Context, amount decimal.Decimal) error
	DismissBidError()
	Refetch()
}

type SessionHandler struct {
	session    SessionView
	connection func() string
	journal    domain.SyncJournal
	auctionID  string
	log        logger.Logger
}

type PlaceBidRequest struct {
	// Amount is accepted as a JSON string or number.
	Amount json.RawMessage `json:"amount"`
}

// amountText returns the raw amount without JSON string quoting.
func (r PlaceBidRequest) amountText() string {
	var text string
	if err := json.Unmarshal(r.Amount, &text); err == nil {
		return text
	}
	return string(r.Amount)
}

type SessionResponse struct {
	services.SessionState
	Connection string `json:"connection"`
}

func NewSessionHandler(
	session SessionView,
	connection func() string,
	journal domain.SyncJournal,
	auctionID string,
	log logger.Logger,
) *SessionHandler {
	return &SessionHandler{
		session:    session,
		connection: connection,
		journal:    journal,
		auctionID:  auctionID,
		log:        log,
	}
}

// Register mounts the control routes on e.
func (h *SessionHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)

	api := e.Group("/api")
	api.GET("/auction", h.GetState)
	api.POST("/auction/bid", h.PlaceBid)
	api.DELETE("/auction/bid/error", h.DismissBidError)
	api.POST("/auction/refresh", h.Refresh)
	api.GET("/auction/journal", h.Journal)
}

func (h *SessionHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"service":    "auction-watcher",
		"auction_id": h.auctionID,
		"connection": h.connection(),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

func (h *SessionHandler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, SessionResponse{
		SessionState: h.session.State(),
		Connection:   h.connection(),
	})
}

func (h *SessionHandler) PlaceBid(c echo.Context) error {
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		h.log.Debug("Failed to bind bid request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	amount, err := services.ParseBidAmount(req.amountText())
	if err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": domain.UserMessage(err)})
	}

	h.log.Info("PlaceBid endpoint called", "amount", amount.String(), "remote_addr", c.RealIP())

	if err := h.session.SubmitBid(c.Request().Context(), amount); err != nil {
		return c.JSON(statusFor(err), map[string]string{"error": domain.UserMessage(err)})
	}
	return c.JSON(http.StatusAccepted, SessionResponse{
		SessionState: h.session.State(),
		Connection:   h.connection(),
	})
}

func (h *SessionHandler) DismissBidError(c echo.Context) error {
	h.session.DismissBidError()
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) Refresh(c echo.Context) error {
	h.session.Refetch()
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Refresh requested"})
}

func (h *SessionHandler) Journal(c echo.Context) error {
	if h.journal == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Sync journal is disabled"})
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	entries, err := h.journal.History(c.Request().Context(), h.auctionID, limit)
	if err != nil {
		h.log.Error("Failed to read sync journal", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to read sync journal"})
	}
	return c.JSON(http.StatusOK, entries)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrServerRejection):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
