package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyboard/connection-service/internal/connection"
)

// call runs h with an authenticated user (JWT numeric sub arrives as
// float64) and returns the recorder.
func call(t *testing.T, h echo.HandlerFunc, method, target, body string, user interface{}) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if user != nil {
		c.Set("user_id", user)
	}
	if i := strings.Index(target, "/connections/"); i >= 0 {
		c.SetParamNames("id")
		c.SetParamValues(target[i+len("/connections/"):])
	}
	require.NoError(t, h(c))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestConnectCreated(t *testing.T) {
	svc := &fakeService{}
	h := NewConnectionHandler(svc)

	rec := call(t, h.Connect, http.MethodPost, "/v1/rpc/connect",
		`{"listing_id":3,"want_social_share":true,"question_ids":[4,5,6],"bonding_answers":{"4":"a","5":"b","6":"c"}}`, float64(1))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 77, decode(t, rec)["connection_id"])
	assert.Equal(t, uint64(1), svc.actor)
	assert.Equal(t, uint64(3), svc.connect.ListingID)
	require.NotNil(t, svc.connect.WantSocialShare)
	assert.True(t, *svc.connect.WantSocialShare)
	assert.Equal(t, map[uint64]string{4: "a", 5: "b", 6: "c"}, svc.connect.Answers)
}

func TestProcedureRoutesBindBodies(t *testing.T) {
	svc := &fakeService{}
	h := NewConnectionHandler(svc)

	rec := call(t, h.SubmitBondingAnswers, http.MethodPost, "/v1/rpc/submit_bonding_answers",
		`{"connection_id":5,"answers":{"11":"since 2015","12":"Spring Day"}}`, "2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body, "connection")
	assert.Equal(t, uint64(2), svc.actor)
	assert.Equal(t, uint64(5), svc.id)
	assert.Equal(t, map[uint64]string{11: "since 2015", 12: "Spring Day"}, svc.answers)

	rec = call(t, h.SellerRespond, http.MethodPost, "/", `{"connection_id":5,"accept":false,"seller_social_share":true}`, float64(2))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, *svc.flag)
	assert.True(t, *svc.share)

	rec = call(t, h.SetComfortDecision, http.MethodPost, "/", `{"connection_id":5,"comfort":true}`, float64(2))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, *svc.flag)

	rec = call(t, h.SetSocialShareDecision, http.MethodPost, "/", `{"connection_id":5,"share":false}`, float64(2))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, *svc.flag)

	rec = call(t, h.EndConnection, http.MethodPost, "/", `{"connection_id":5,"reason":"found another seat"}`, float64(2))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "found another seat", svc.reason)

	rec = call(t, h.RateConnection, http.MethodPost, "/", `{"connection_id":5,"score":4}`, float64(2))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, svc.score)

	for _, hf := range []echo.HandlerFunc{h.AcceptAgreement, h.UndoConnection, h.GetPreview} {
		rec = call(t, hf, http.MethodPost, "/", `{"connection_id":5}`, float64(2))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, []string{
		"SubmitBondingAnswers", "SellerRespond", "SetComfortDecision", "SetSocialShareDecision",
		"EndConnection", "RateConnection", "AcceptAgreement", "UndoEnd", "GetPreview",
	}, svc.calls)
}

func TestRequestValidation(t *testing.T) {
	svc := &fakeService{}
	h := NewConnectionHandler(svc)

	cases := []struct {
		name string
		h    echo.HandlerFunc
		body string
		user interface{}
		code int
	}{
		{"no user", h.AcceptAgreement, `{"connection_id":5}`, nil, http.StatusUnauthorized},
		{"zero sub", h.AcceptAgreement, `{"connection_id":5}`, float64(0), http.StatusUnauthorized},
		{"missing connection id", h.AcceptAgreement, `{}`, float64(1), http.StatusBadRequest},
		{"malformed body", h.EndConnection, `{"connection_id":`, float64(1), http.StatusBadRequest},
		{"accept omitted", h.SellerRespond, `{"connection_id":5}`, float64(2), http.StatusBadRequest},
		{"comfort omitted", h.SetComfortDecision, `{"connection_id":5}`, float64(2), http.StatusBadRequest},
		{"share omitted", h.SetSocialShareDecision, `{"connection_id":5}`, float64(2), http.StatusBadRequest},
		{"listing omitted", h.Connect, `{}`, float64(1), http.StatusBadRequest},
		{"preview without id", h.GetPreview, `{}`, float64(1), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(t, tc.h, http.MethodPost, "/", tc.body, tc.user)
			assert.Equal(t, tc.code, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
	assert.Empty(t, svc.calls, "invalid requests never reach the service")
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{connection.ErrNotAuthorized, http.StatusForbidden},
		{connection.ErrStageClosed, http.StatusConflict},
		{fmt.Errorf("%w: expected 3 answers, got 2", connection.ErrValidation), http.StatusBadRequest},
		{connection.ErrAlreadySubmitted, http.StatusConflict},
		{connection.ErrNotFound, http.StatusNotFound},
		{connection.ErrListingUnavailable, http.StatusConflict},
		{connection.ErrConcurrentUpdate, http.StatusConflict},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			h := NewConnectionHandler(&fakeService{err: tc.err})
			rec := call(t, h.AcceptAgreement, http.MethodPost, "/", `{"connection_id":5}`, float64(1))
			assert.Equal(t, tc.code, rec.Code)
			body := decode(t, rec)
			assert.NotContains(t, body, "stage")
			if tc.code == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body["error"])
			} else {
				assert.Equal(t, tc.err.Error(), body["error"])
			}
		})
	}
}

func TestConflictExpiredCarriesStage(t *testing.T) {
	h := NewConnectionHandler(&fakeService{err: connection.ErrConflictExpired})
	rec := call(t, h.SubmitBondingAnswers, http.MethodPost, "/", `{"connection_id":5,"answers":{"1":"x"}}`, float64(1))
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "expired", body["stage"])
	assert.Equal(t, "connection expired", body["error"])
}

func TestGetAndList(t *testing.T) {
	svc := &fakeService{}
	h := NewConnectionHandler(svc)

	rec := call(t, h.Get, http.MethodGet, "/v1/connections/42", "", float64(1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, decode(t, rec)["id"])

	rec = call(t, h.Get, http.MethodGet, "/v1/connections/abc", "", float64(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, h.ListMine, http.MethodGet, "/v1/connections?limit=20", "", float64(1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"connections":[]}`, rec.Body.String())
	assert.Equal(t, 20, svc.limit)

	rec = call(t, h.ListMine, http.MethodGet, "/v1/connections?limit=-1", "", float64(1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserID(t *testing.T) {
	e := echo.New()
	for _, v := range []interface{}{uint64(9), 9, int64(9), float64(9), "9"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set("user_id", v)
		id, err := getUserID(c)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, uint64(9), id)
	}
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set("user_id", "army")
	_, err := getUserID(c)
	assert.Error(t, err)
}
