package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyboard/connection-service/internal/handler"
	"github.com/armyboard/connection-service/internal/model"
	"github.com/armyboard/connection-service/internal/service"
	"github.com/armyboard/connection-service/internal/utils"
)

const secret = "borahae"

// stubService answers every procedure with a view for the caller.
type stubService struct{ expired int }

func (s *stubService) view(actor, id uint64) service.ConnectionView {
	return service.ConnectionView{ID: id, Stage: model.StagePendingSeller, Buyer: service.PartyStatus{UserID: actor}}
}

func (s *stubService) Connect(ctx context.Context, actorID uint64, req service.ConnectRequest) (uint64, error) {
	return 1, nil
}
func (s *stubService) SellerRespond(ctx context.Context, a, id uint64, accept bool, share *bool) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) SubmitBondingAnswers(ctx context.Context, a, id uint64, m map[uint64]string) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) SetComfortDecision(ctx context.Context, a, id uint64, v bool) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) SetSocialShareDecision(ctx context.Context, a, id uint64, v bool) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) AcceptAgreement(ctx context.Context, a, id uint64) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) EndConnection(ctx context.Context, a, id uint64, r string) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) UndoEnd(ctx context.Context, a, id uint64) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) RateConnection(ctx context.Context, a, id uint64, score int) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) GetPreview(ctx context.Context, a, id uint64) (service.Preview, error) {
	return service.Preview{Connection: s.view(a, id)}, nil
}
func (s *stubService) Get(ctx context.Context, a, id uint64) (service.ConnectionView, error) {
	return s.view(a, id), nil
}
func (s *stubService) ListMine(ctx context.Context, a uint64, limit int) ([]service.ConnectionView, error) {
	return []service.ConnectionView{s.view(a, 1)}, nil
}
func (s *stubService) ExpireDue(ctx context.Context, limit int) (int, error) { return s.expired, nil }

func newServer() *echo.Echo {
	e := echo.New()
	svc := &stubService{expired: 2}
	RegisterRoutes(e, nil)
	v1 := RegisterConnections(e, handler.NewConnectionHandler(svc), secret, nil)
	RegisterAdmin(v1, handler.NewAdminHandler(svc, 100))
	return e
}

func bearer(t *testing.T, user uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, user, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func do(e *echo.Echo, method, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	rec := do(newServer(), http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProcedureRoutesRequireToken(t *testing.T) {
	e := newServer()
	routes := []string{
		"connect", "seller_respond_connection", "submit_bonding_answers", "set_comfort_decision",
		"set_social_share_decision", "accept_agreement", "end_connection", "undo_connection",
		"rate_connection", "get_connection_preview",
	}
	for _, r := range routes {
		rec := do(e, http.MethodPost, "/v1/rpc/"+r, "", `{"connection_id":1}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r)
		rec = do(e, http.MethodPost, "/v1/rpc/"+r, bearer(t, 5, ""), `{"connection_id":1,"listing_id":1,"accept":true,"comfort":true,"share":true}`)
		assert.Contains(t, []int{http.StatusOK, http.StatusCreated}, rec.Code, r)
	}
}

func TestReadRoutes(t *testing.T) {
	e := newServer()
	rec := do(e, http.MethodGet, "/v1/connections/9", bearer(t, 5, ""), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":9`)
	assert.Contains(t, rec.Body.String(), `"user_id":5`)

	rec = do(e, http.MethodGet, "/v1/connections", bearer(t, 5, ""), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connections":[`)
}

func TestAdminSweepRequiresRole(t *testing.T) {
	e := newServer()
	rec := do(e, http.MethodPost, "/v1/admin/sweep", bearer(t, 5, ""), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, http.MethodPost, "/v1/admin/sweep", bearer(t, 9, "ADMIN"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"expired":2}`, rec.Body.String())
}
