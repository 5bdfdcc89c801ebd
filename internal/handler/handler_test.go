package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/eventhub-tickets/internal/artifact"
	"github.com/iliyamo/eventhub-tickets/internal/clock"
	"github.com/iliyamo/eventhub-tickets/internal/config"
	"github.com/iliyamo/eventhub-tickets/internal/middleware"
	"github.com/iliyamo/eventhub-tickets/internal/model"
	"github.com/iliyamo/eventhub-tickets/internal/repository/memory"
	"github.com/iliyamo/eventhub-tickets/internal/service"
	"github.com/iliyamo/eventhub-tickets/internal/utils"
)

const testSecret = "handler-test-secret"

type brokenQR struct{}

func (brokenQR) Encode(string) ([]byte, error) { return nil, errors.New("encoder exploded") }

type env struct {
	events  *memory.EventStore
	tickets *memory.TicketStore
	res     *service.ReservationService
	e       *echo.Echo
}

func newEnv(t *testing.T, qr service.QREncoder) *env {
	t.Helper()
	events := memory.NewEventStore()
	tickets := memory.NewTicketStore(events)
	res := service.NewReservationService(events, tickets, clock.NewSystem())
	arts := service.NewArtifactService(res, qr, artifact.NewPDFRenderer(), nil)
	th := NewTicketHandler(res, arts, nil)
	eh := NewEventHandler(service.NewEventService(events, nil, nil), res, nil)

	e := echo.New()
	e.POST("/v1/tickets", th.Purchase)
	e.GET("/v1/tickets/:id", th.GetTicket)
	e.GET("/v1/tickets/:id/qr", th.TicketQR)
	e.GET("/v1/tickets/:id/download", th.DownloadTicket)
	e.GET("/v1/events", eh.ListEvents)
	e.GET("/v1/events/:id", eh.GetEvent)
	e.DELETE("/v1/events/:id", eh.DeleteEvent)
	e.PATCH("/v1/events/:id", eh.UpdateEvent)
	e.GET("/v1/events/:id/tickets", eh.ListEventTickets)
	return &env{events: events, tickets: tickets, res: res, e: e}
}

func (v *env) addEvent(t *testing.T, seats int) *model.Event {
	t.Helper()
	ev, err := v.events.Create(context.Background(), model.EventInput{
		Title: "Night Show", Category: model.CategoryConcert, Date: time.Now().Add(48 * time.Hour),
		Location: "Hall A", PriceCents: 2500, TotalSeats: seats,
	})
	require.NoError(t, err)
	return ev
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func purchaseBody(eventID uint64, qty int) string {
	return fmt.Sprintf(`{"event_id":%d,"customer_name":"Ada","customer_email":"ada@example.com","quantity":%d}`, eventID, qty)
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: quantity", service.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("%w: event 9", service.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: 3 > 1", service.ErrInsufficientInventory), http.StatusConflict, "insufficient_inventory"},
		{fmt.Errorf("%w: has tickets", service.ErrConflict), http.StatusConflict, "conflict"},
		{fmt.Errorf("%w: qr", service.ErrArtifactGeneration), http.StatusServiceUnavailable, "artifact_unavailable"},
		{fmt.Errorf("%w: insert: dial tcp", service.ErrStorage), http.StatusInternalServerError, "internal_error"},
		{errors.New("anything else"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.code+"/"+tc.err.Error(), func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			e := echo.New()
			e.GET("/x", func(c echo.Context) error { return respondError(c, zap.New(core), tc.err) })

			rec := do(e, http.MethodGet, "/x", "")
			assert.Equal(t, tc.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tc.code, body["code"])
			if tc.status == http.StatusServiceUnavailable {
				assert.Equal(t, "5", rec.Header().Get("Retry-After"))
			}
			if tc.status == http.StatusInternalServerError {
				// internal details stay in the log
				assert.Equal(t, "please try again later", body["error"])
				assert.Equal(t, 1, logs.Len())
			} else {
				assert.Zero(t, logs.Len())
			}
		})
	}
}

func TestPurchase(t *testing.T) {
	v := newEnv(t, artifact.NewQREncoder())
	ev := v.addEvent(t, 10)

	rec := do(v.e, http.MethodPost, "/v1/tickets", purchaseBody(ev.ID, 3))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(3), body["quantity"])
	assert.True(t, strings.HasPrefix(body["qr_code"].(string), "data:image/png;base64,"))
	assert.NotContains(t, body, "artifact_error")

	got, err := v.events.GetByID(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, got.AvailableSeats)

	// the 10/3/8 scenario: the next request for 8 is refused
	rec = do(v.e, http.MethodPost, "/v1/tickets", purchaseBody(ev.ID, 8))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_inventory", decode(t, rec)["code"])

	rec = do(v.e, http.MethodPost, "/v1/tickets", purchaseBody(9999, 1))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(v.e, http.MethodPost, "/v1/tickets", purchaseBody(ev.ID, 0))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(v.e, http.MethodPost, "/v1/tickets", `{"event_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchaseKeepsTicketWhenQRFails(t *testing.T) {
	v := newEnv(t, brokenQR{})
	ev := v.addEvent(t, 5)

	rec := do(v.e, http.MethodPost, "/v1/tickets", purchaseBody(ev.ID, 2))
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.NotContains(t, body, "qr_code")
	assert.NotEmpty(t, body["artifact_error"])
	assert.Equal(t, 1, v.tickets.Count())

	// the artifact endpoints report the failure as retryable
	id := body["id"].(string)
	rec = do(v.e, http.MethodGet, "/v1/tickets/"+id+"/qr", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))

	// the seats stay sold
	got, err := v.events.GetByID(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AvailableSeats)
}

func TestTicketEndpoints(t *testing.T) {
	v := newEnv(t, artifact.NewQREncoder())
	ev := v.addEvent(t, 4)
	tk, err := v.res.Purchase(context.Background(), service.PurchaseInput{
		EventID: ev.ID, CustomerName: "Grace", CustomerEmail: "grace@example.com", Quantity: 2,
	})
	require.NoError(t, err)

	rec := do(v.e, http.MethodGet, "/v1/tickets/"+tk.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, tk.ID, body["id"])
	assert.Equal(t, "Night Show", body["event"].(map[string]any)["title"])

	rec = do(v.e, http.MethodGet, "/v1/tickets/"+tk.ID+"/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = do(v.e, http.MethodGet, "/v1/tickets/"+tk.ID+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "attachment; filename=ticket-"+tk.ID+".pdf", rec.Header().Get(echo.HeaderContentDisposition))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	for _, path := range []string{"/v1/tickets/nope", "/v1/tickets/nope/qr", "/v1/tickets/nope/download"} {
		assert.Equal(t, http.StatusNotFound, do(v.e, http.MethodGet, path, "").Code, path)
	}
}

func TestEventEndpoints(t *testing.T) {
	v := newEnv(t, artifact.NewQREncoder())
	ev := v.addEvent(t, 6)
	_, err := v.res.Purchase(context.Background(), service.PurchaseInput{
		EventID: ev.ID, CustomerName: "Lin", CustomerEmail: "lin@example.com", Quantity: 2,
	})
	require.NoError(t, err)
	id := fmt.Sprint(ev.ID)

	rec := do(v.e, http.MethodGet, "/v1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	assert.Len(t, decode(t, do(v.e, http.MethodGet, "/v1/events?category=cinema", ""))["items"], 0)
	assert.Equal(t, http.StatusBadRequest, do(v.e, http.MethodGet, "/v1/events?category=opera", "").Code)

	rec = do(v.e, http.MethodGet, "/v1/events/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), decode(t, rec)["available_seats"])
	assert.Equal(t, http.StatusBadRequest, do(v.e, http.MethodGet, "/v1/events/abc", "").Code)
	assert.Equal(t, http.StatusNotFound, do(v.e, http.MethodGet, "/v1/events/404", "").Code)

	rec = do(v.e, http.MethodPatch, "/v1/events/"+id, `{"price_cents":0}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(0), decode(t, rec)["price_cents"])
	assert.Equal(t, http.StatusBadRequest, do(v.e, http.MethodPatch, "/v1/events/"+id, `{"available_seats":100}`).Code)

	rec = do(v.e, http.MethodGet, "/v1/events/"+id+"/tickets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["items"], 1)
	assert.Equal(t, float64(2), body["seats_sold"])

	rec = do(v.e, http.MethodDelete, "/v1/events/"+id, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode(t, rec)["code"])

	unsold := v.addEvent(t, 3)
	assert.Equal(t, http.StatusNoContent, do(v.e, http.MethodDelete, fmt.Sprintf("/v1/events/%d", unsold.ID), "").Code)
	assert.Equal(t, http.StatusNotFound, do(v.e, http.MethodDelete, fmt.Sprintf("/v1/events/%d", unsold.ID), "").Code)
}

func newAuth(t *testing.T) (*echo.Echo, *memory.TokenStore) {
	t.Helper()
	users := memory.NewUserStore()
	_, err := users.Create(context.Background(), "admin", "s3cret", model.RoleAdmin, 4)
	require.NoError(t, err)
	tokens := memory.NewTokenStore()
	cfg := config.Config{JWTSecret: testSecret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}
	h := NewAuthHandler(cfg, users, tokens, nil, nil)

	e := echo.New()
	e.POST("/v1/auth/login", h.Login)
	e.POST("/v1/auth/refresh", h.Refresh)
	e.POST("/v1/auth/logout", h.Logout)
	e.POST("/v1/auth/refresh-access", h.RefreshAccess)
	e.GET("/v1/me", h.Me, middleware.JWTAuth(testSecret))
	e.POST("/v1/users", h.Register, middleware.JWTAuth(testSecret), middleware.RequireRole(model.RoleAdmin))
	return e, tokens
}

func login(t *testing.T, e *echo.Echo) (access, refresh string) {
	t.Helper()
	rec := do(e, http.MethodPost, "/v1/auth/login", `{"username":" Admin ","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "admin", resp.User.Username)
	assert.Equal(t, model.RoleAdmin, resp.User.Role)
	return resp.Access.Token, resp.Refresh.Token
}

func TestLogin(t *testing.T) {
	e, _ := newAuth(t)
	access, refresh := login(t, e)
	assert.NotEmpty(t, access)
	assert.Len(t, refresh, 96)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"root","password":"s3cret"}`, http.StatusUnauthorized},
		{"missing fields", `{"username":"admin"}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, do(e, http.MethodPost, "/v1/auth/login", tc.body).Code)
		})
	}
}

func TestMe(t *testing.T) {
	e, _ := newAuth(t)
	access, _ := login(t, e)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+access)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", decode(t, rec)["username"])

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/v1/me", "").Code)
}

func TestRefreshRotates(t *testing.T) {
	e, _ := newAuth(t)
	_, refresh := login(t, e)

	rec := do(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, refresh, resp.Refresh.Token)

	// the old token was revoked by the rotation
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/v1/auth/refresh", `{}`).Code)
}

func TestLogout(t *testing.T) {
	e, tokens := newAuth(t)

	_, refresh := login(t, e)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodPost, "/v1/auth/logout", `{"refresh_token":"`+refresh+`"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/v1/auth/logout", `{"refresh_token":"`+refresh+`"}`).Code)

	// bearer logout revokes every session of the user
	access, r1 := login(t, e)
	_, r2 := login(t, e)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+access)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	for _, r := range []string{r1, r2} {
		_, err := tokens.ValidateRefresh(context.Background(), utils.HashRefreshRaw(r))
		assert.Error(t, err)
	}

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/v1/auth/logout", "").Code)
}

func authed(e *echo.Echo, method, target, body, access string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if access != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+access)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	e, _ := newAuth(t)
	access, _ := login(t, e)

	rec := authed(e, http.MethodPost, "/v1/users", `{"username":" Grace ","password":"hopper1906"}`, access)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "grace", user["username"])
	assert.Equal(t, model.RoleAdmin, user["role"])

	// the new admin can sign in
	rec = do(e, http.MethodPost, "/v1/auth/login", `{"username":"grace","password":"hopper1906"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name   string
		body   string
		access string
		want   int
	}{
		{"taken username", `{"username":"GRACE","password":"another-one"}`, access, http.StatusConflict},
		{"short password", `{"username":"linus","password":"short"}`, access, http.StatusBadRequest},
		{"password over 72 bytes", `{"username":"linus","password":"` + strings.Repeat("x", 73) + `"}`, access, http.StatusBadRequest},
		{"missing username", `{"password":"hopper1906"}`, access, http.StatusBadRequest},
		{"no token", `{"username":"linus","password":"torvalds91"}`, "", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, authed(e, http.MethodPost, "/v1/users", tc.body, tc.access).Code)
		})
	}
}

func TestRefreshAccessKeepsRefreshToken(t *testing.T) {
	e, _ := newAuth(t)
	_, refresh := login(t, e)

	for i := 0; i < 2; i++ {
		rec := do(e, http.MethodPost, "/v1/auth/refresh-access", `{"refresh_token":"`+refresh+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		access := decode(t, rec)["access"].(map[string]any)
		assert.NotEmpty(t, access["token"])
	}
	// still valid for a rotation afterwards
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"`+refresh+`"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/v1/auth/refresh-access", `{"refresh_token":"`+refresh+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/v1/auth/refresh-access", `{}`).Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/plain", NewHealthHandler(nil).Health)
	e.GET("/deps", NewHealthHandler(map[string]Pinger{
		"mysql": PingFunc(func(context.Context) error { return nil }),
		"redis": failingPinger{},
	}).Health)

	rec := do(e, http.MethodGet, "/plain", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(e, http.MethodGet, "/deps", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks := decode(t, rec)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["mysql"])
	assert.Equal(t, "connection refused", checks["redis"])
}
