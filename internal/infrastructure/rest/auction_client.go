package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"auction-sync/internal/domain"
	"auction-sync/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// AuctionClient talks to the auction REST API. It implements
// domain.AuctionAPI and domain.AccountAPI.
type AuctionClient struct {
	*BaseClient
	validate *validator.Validate
}

var (
	_ domain.AuctionAPI = (*AuctionClient)(nil)
	_ domain.AccountAPI = (*AuctionClient)(nil)
)

func NewAuctionClient(base *BaseClient) *AuctionClient {
	return &AuctionClient{
		BaseClient: base,
		validate:   validator.New(),
	}
}

func (c *AuctionClient) ListAuctions(ctx context.Context, params domain.ListParams) (*domain.AuctionPage, error) {
	query := url.Values{}
	if params.Page > 0 {
		query.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Status != "" && params.Status != "all" {
		query.Set("status", params.Status)
	}

	endpoint := "/api/auctions"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	var page domain.AuctionPage
	err := c.MakeRequest(ctx, request{
		op:          "list auctions",
		method:      http.MethodGet,
		endpoint:    endpoint,
		failMessage: "Failed to fetch auctions. Please try again.",
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *AuctionClient) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	var auction domain.Auction
	err := c.MakeRequest(ctx, request{
		op:          "get auction",
		method:      http.MethodGet,
		endpoint:    "/api/auctions/" + url.PathEscape(auctionID),
		failMessage: "Failed to fetch auction details. Please try again.",
	}, &auction)
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

type placeBidRequest struct {
	Amount json.Number `json:"amount"`
}

func (c *AuctionClient) PlaceBid(ctx context.Context, auctionID string, amount decimal.Decimal) (*domain.Auction, error) {
	var auction domain.Auction
	err := c.MakeRequest(ctx, request{
		op:          "place bid",
		method:      http.MethodPost,
		endpoint:    "/api/auctions/" + url.PathEscape(auctionID) + "/bid",
		body:        placeBidRequest{Amount: json.Number(amount.String())},
		requireAuth: true,
		authMessage: "Please login to place a bid",
		failMessage: "Failed to place bid. Please try again.",
	}, &auction)
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

type createAuctionRequest struct {
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	StartingPrice json.Number `json:"startingPrice"`
	EndsAt        string      `json:"endsAt"`
}

func (c *AuctionClient) CreateAuction(ctx context.Context, params domain.CreateAuctionParams) (*domain.Auction, error) {
	if err := c.validate.Struct(params); err != nil {
		return nil, validationError("create auction", err)
	}
	if !params.StartingPrice.IsPositive() {
		return nil, domain.NewValidationError("create auction", "Starting price must be greater than zero")
	}
	if !params.EndsAt.After(time.Now()) {
		return nil, domain.NewValidationError("create auction", "End time must be in the future")
	}

	var auction domain.Auction
	err := c.MakeRequest(ctx, request{
		op:       "create auction",
		method:   http.MethodPost,
		endpoint: "/api/auctions",
		body: createAuctionRequest{
			Title:         params.Title,
			Description:   params.Description,
			StartingPrice: json.Number(params.StartingPrice.String()),
			EndsAt:        params.EndsAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
		requireAuth: true,
		authMessage: "Please login to create an auction",
		failMessage: "Failed to create auction. Please try again.",
	}, &auction)
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

func (c *AuctionClient) GetProfile(ctx context.Context) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	err := c.MakeRequest(ctx, request{
		op:          "get profile",
		method:      http.MethodGet,
		endpoint:    "/api/users/me",
		requireAuth: true,
		authMessage: "Please login to view profile",
		failMessage: "Failed to fetch profile. Please try again.",
	}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *AuctionClient) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	return c.authenticate(ctx, "login", "/api/auth/login", "Login failed. Please try again.", creds)
}

func (c *AuctionClient) Register(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	return c.authenticate(ctx, "register", "/api/auth/register", "Registration failed. Please try again.", creds)
}

// authResponse accepts the token under any of the names the API has used.
type authResponse struct {
	Token            string      `json:"token"`
	AccessToken      string      `json:"access_token"`
	AccessTokenCamel string      `json:"accessToken"`
	User             domain.User `json:"user"`
}

func (r authResponse) token() string {
	switch {
	case r.Token != "":
		return r.Token
	case r.AccessToken != "":
		return r.AccessToken
	default:
		return r.AccessTokenCamel
	}
}

func (c *AuctionClient) authenticate(
	ctx context.Context,
	op, endpoint, failMessage string,
	creds domain.Credentials,
) (*domain.AuthResponse, error) {
	if err := c.validate.Struct(creds); err != nil {
		return nil, validationError(op, err)
	}

	var raw authResponse
	err := c.MakeRequest(ctx, request{
		op:          op,
		method:      http.MethodPost,
		endpoint:    endpoint,
		body:        creds,
		failMessage: failMessage,
	}, &raw)
	if err != nil {
		return nil, err
	}

	resp := &domain.AuthResponse{Token: raw.token(), User: raw.User}
	if resp.Token == "" {
		return nil, domain.NewServerRejection(op, "Server did not return a token", http.StatusOK)
	}
	if c.tokens != nil {
		if err := c.tokens.SetItem(ctx, domain.AuthTokenKey, resp.Token); err != nil {
			c.log.Error("Failed to persist auth token", "error", err)
			return nil, err
		}
	}
	c.log.Info("Authenticated", "op", op, "user_id", resp.User.ID)
	return resp, nil
}

func validationError(op string, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(op, fieldMessage(fe))
	}
	return domain.NewValidationError(op, err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Please enter a valid email"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

// NewClient builds an AuctionClient with its own base client.
func NewClient(baseURL string, tokens domain.TokenStore, log logger.Logger) *AuctionClient {
	return NewAuctionClient(NewBaseClient(baseURL, 0, tokens, log))
}
