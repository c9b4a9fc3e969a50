package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"auction-sync/internal/domain"
	"auction-sync/internal/infrastructure/auth"
	"auction-sync/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type AuctionHandler struct {
	manager  *AuctionManager
	signer   *auth.Signer
	validate *validator.Validate
	log      logger.Logger
}

type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func NewAuctionHandler(manager *AuctionManager, signer *auth.Signer, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		manager:  manager,
		signer:   signer,
		validate: validator.New(),
		log:      log,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"statusCode": status,
		"message":    message,
	})
}

// errorStatus maps backend errors onto the HTTP status and user-facing message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrAuctionNotFound), errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, capitalize(err.Error())
	case errors.Is(err, ErrAuctionNotActive), errors.Is(err, ErrBidTooLow):
		return http.StatusBadRequest, capitalize(err.Error())
	case errors.Is(err, ErrOwnAuction):
		return http.StatusForbidden, "You cannot bid on your own auction"
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict, capitalize(err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, capitalize(err.Error())
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// authenticate returns the caller's user id, writing a 401 when it has none.
func (h *AuctionHandler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", false
	}
	return claims.Subject, true
}

func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	writeJSON(w, http.StatusOK, h.manager.ListAuctions(domain.ListParams{
		Page:   page,
		Limit:  limit,
		Status: q.Get("status"),
	}))
}

func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auction, err := h.manager.GetAuction(mux.Vars(r)["id"])
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, auction)
}

func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	auctionID := mux.Vars(r)["id"]
	auction, err := h.manager.PlaceBid(r.Context(), auctionID, userID, req.Amount)
	if err != nil {
		h.log.Info("Bid rejected", "auction_id", auctionID, "user_id", userID, "reason", err)
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, auction)
}

func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var params domain.CreateAuctionParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !params.StartingPrice.IsPositive() {
		writeError(w, http.StatusBadRequest, "Starting price must be positive")
		return
	}
	if !params.EndsAt.After(h.manager.clock.Now()) {
		writeError(w, http.StatusBadRequest, "End time must be in the future")
		return
	}

	auction, err := h.manager.CreateAuction(userID, params)
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusCreated, auction)
}

func (h *AuctionHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	profile, err := h.manager.Profile(userID)
	if err != nil {
		status, message := errorStatus(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AuctionHandler) Login(w http.ResponseWriter, r *http.Request) {
	h.authenticateAccount(w, r, h.manager.Login, http.StatusOK)
}

func (h *AuctionHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.authenticateAccount(w, r, h.manager.Register, http.StatusCreated)
}

func (h *AuctionHandler) authenticateAccount(
	w http.ResponseWriter,
	r *http.Request,
	fn func(email, password string) (domain.User, error),
	status int,
) {
	var creds domain.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(creds); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := fn(creds.Email, creds.Password)
	if err != nil {
		code, message := errorStatus(err)
		writeError(w, code, message)
		return
	}

	token, err := h.signer.Issue(user.ID, user.Email)
	if err != nil {
		h.log.Error("Failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	// The access_token spelling matches the upstream API.
	writeJSON(w, status, map[string]interface{}{
		"access_token": token,
		"user":         user,
	})
}
