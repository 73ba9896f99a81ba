package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/armyboard/connection-service/internal/service"
)

// ConnectionService is the set of connection procedures the HTTP layer
// exposes.  *service.ConnectionService implements it.
type ConnectionService interface {
	Connect(ctx context.Context, actorID uint64, req service.ConnectRequest) (uint64, error)
	SellerRespond(ctx context.Context, actorID, id uint64, accept bool, sellerSocialShare *bool) (service.ConnectionView, error)
	SubmitBondingAnswers(ctx context.Context, actorID, id uint64, answers map[uint64]string) (service.ConnectionView, error)
	SetComfortDecision(ctx context.Context, actorID, id uint64, comfort bool) (service.ConnectionView, error)
	SetSocialShareDecision(ctx context.Context, actorID, id uint64, share bool) (service.ConnectionView, error)
	AcceptAgreement(ctx context.Context, actorID, id uint64) (service.ConnectionView, error)
	EndConnection(ctx context.Context, actorID, id uint64, reason string) (service.ConnectionView, error)
	UndoEnd(ctx context.Context, actorID, id uint64) (service.ConnectionView, error)
	RateConnection(ctx context.Context, actorID, id uint64, score int) (service.ConnectionView, error)
	GetPreview(ctx context.Context, actorID, id uint64) (service.Preview, error)
	Get(ctx context.Context, actorID, id uint64) (service.ConnectionView, error)
	ListMine(ctx context.Context, actorID uint64, limit int) ([]service.ConnectionView, error)
}

var _ ConnectionService = (*service.ConnectionService)(nil)

// ConnectionHandler serves the connection procedures.  Every route
// assumes JWTAuth already ran; a missing or malformed subject is 401.
// Procedure routes take a JSON body carrying connection_id and answer
// {"ok": true, "connection": <view>} on success.
type ConnectionHandler struct {
	Svc ConnectionService
}

// NewConnectionHandler builds the handler.  svc must be non-nil.
func NewConnectionHandler(svc ConnectionService) *ConnectionHandler {
	if svc == nil {
		panic("nil service passed to NewConnectionHandler")
	}
	return &ConnectionHandler{Svc: svc}
}

// Connect handles POST /v1/rpc/connect.  The buyer may pre-record a social
// share preference and answer bonding questions up front; question_ids
// are required together with bonding_answers.
func (h *ConnectionHandler) Connect(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		ListingID       uint64            `json:"listing_id"`
		WantSocialShare *bool             `json:"want_social_share"`
		QuestionIDs     []uint64          `json:"question_ids"`
		BondingAnswers  map[uint64]string `json:"bonding_answers"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ListingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "listing_id is required"})
	}
	id, err := h.Svc.Connect(c.Request().Context(), userID, service.ConnectRequest{
		ListingID:       body.ListingID,
		WantSocialShare: body.WantSocialShare,
		QuestionIDs:     body.QuestionIDs,
		Answers:         body.BondingAnswers,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"connection_id": id})
}

// SellerRespond handles POST /v1/rpc/seller_respond_connection.
func (h *ConnectionHandler) SellerRespond(c echo.Context) error {
	var body struct {
		ConnectionID      uint64 `json:"connection_id"`
		Accept            *bool  `json:"accept"`
		SellerSocialShare *bool  `json:"seller_social_share"`
	}
	return h.act(c, &body, &body.ConnectionID, func(ctx context.Context, userID uint64) (service.ConnectionView, error) {
		if body.Accept == nil {
			return service.ConnectionView{}, badRequest("accept is required")
		}
		return h.Svc.SellerRespond(ctx, userID, body.ConnectionID, *body.Accept, body.SellerSocialShare)
	})
}

// SubmitBondingAnswers handles POST /v1/rpc/submit_bonding_answers.
// answers maps question id to answer text.
func (h *ConnectionHandler) SubmitBondingAnswers(c echo.Context) error {
	var body struct {
		ConnectionID uint64            `json:"connection_id"`
		Answers      map[uint64]string `json:"answers"`
	}
	return h.act(c, &body, &body.ConnectionID, func(ctx context.Context, userID uint64) (service.ConnectionView, error) {
		return h.Svc.SubmitBondingAnswers(ctx, userID, body.ConnectionID, body.Answers)
	})
}

// SetComfortDecision handles POST /v1/rpc/set_comfort_decision.
func (h *ConnectionHandler) SetComfortDecision(c echo.Context) error {
	var body struct {
		ConnectionID uint64 `json:"connection_id"`
		Comfort      *bool  `json:"comfort"`
	}
	return h.act(c, &body, &body.ConnectionID, func(ctx context.Context, userID uint64) (service.ConnectionView, error) {
		if body.Comfort == nil {
			return service.ConnectionView{}, badRequest("comfort is required")
		}
		return h.Svc.SetComfortDecision(ctx, userID, body.ConnectionID, *body.Comfort)
	})
}

// SetSocialShareDecision handles POST /v1/rpc/set_social_share_decision.
func (h *ConnectionHandler) SetSocialShareDecision(c echo.Context) error {
	var body struct {
		ConnectionID uint64 `json:"connection_id"`
		Share        *bool  `json:"share"`
	}
	return h.act(c, &body, &body.ConnectionID, func(ctx context.Context, userID uint64) (service.ConnectionView, error) {
		if body.Share == nil {
			return service.ConnectionView{}, badRequest("share is required")
		}
		return h.Svc.SetSocialShareDecision(ctx, userID, body.ConnectionID, *body.Share)
	})
}

// AcceptAgreement handles POST /v1/rpc/accept_agreement.
func (h *ConnectionHandler) AcceptAgreement(c echo.Context) error {
	var body struct {
		ConnectionID uint64 `json:"connection_id"`
	}
	return h.act(c, &body, &body.ConnectionID, func(ctx context.Context, userID uint64) (service.ConnectionView, error) {
		return h.Svc.AcceptAgreement(ctx, userID, body.ConnectionID)
	})
}

// EndConnection handles POST /v1/rpc/end_connection.
func (h *ConnectionHandler) EndConnection(c echo.Context) error {
	var body struct {
		ConnectionID uint64 `json:"connection_id"`
		Reason       string `json:"reason"`
	}
	return h.act(c, &body, &body.ConnectionID, func(ctx context.Context, userID uint64) (service.ConnectionView, error) {
		return h.Svc.EndConnection(ctx, userID, body.ConnectionID, body.Reason)
	})
}

// UndoConnection handles POST /v1/rpc/undo_connection.
func (h *ConnectionHandler) UndoConnection(c echo.Context) error {
	var body struct {
		ConnectionID uint64 `json:"connection_id"`
	}
	return h.act(c, &body, &body.ConnectionID, func(ctx context.Context, userID uint64) (service.ConnectionView, error) {
		return h.Svc.UndoEnd(ctx, userID, body.ConnectionID)
	})
}

// RateConnection handles POST /v1/rpc/rate_connection.  score is 1 to 5.
func (h *ConnectionHandler) RateConnection(c echo.Context) error {
	var body struct {
		ConnectionID uint64 `json:"connection_id"`
		Score        int    `json:"score"`
	}
	return h.act(c, &body, &body.ConnectionID, func(ctx context.Context, userID uint64) (service.ConnectionView, error) {
		return h.Svc.RateConnection(ctx, userID, body.ConnectionID, body.Score)
	})
}

// GetPreview handles POST /v1/rpc/get_connection_preview.
func (h *ConnectionHandler) GetPreview(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		ConnectionID uint64 `json:"connection_id"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ConnectionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "connection_id is required"})
	}
	p, err := h.Svc.GetPreview(c.Request().Context(), userID, body.ConnectionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// Get handles GET /v1/connections/:id.
func (h *ConnectionHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid connection id"})
	}
	v, err := h.Svc.Get(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// ListMine handles GET /v1/connections?limit=N, newest first.
func (h *ConnectionHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	limit := 0
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = n
	}
	views, err := h.Svc.ListMine(c.Request().Context(), userID, limit)
	if err != nil {
		return writeError(c, err)
	}
	if views == nil {
		views = []service.ConnectionView{}
	}
	return c.JSON(http.StatusOK, echo.Map{"connections": views})
}

// act binds body, checks the caller and connection id, runs fn and writes
// the resulting view.
func (h *ConnectionHandler) act(c echo.Context, body interface{}, connectionID *uint64, fn func(context.Context, uint64) (service.ConnectionView, error)) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := c.Bind(body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if *connectionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "connection_id is required"})
	}
	v, err := fn(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "connection": v})
}
