package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NathiDhliso/Lexo-sub007/config"
	"github.com/NathiDhliso/Lexo-sub007/middlewares"
	"github.com/NathiDhliso/Lexo-sub007/models"
	"github.com/NathiDhliso/Lexo-sub007/utils"
	"github.com/NathiDhliso/Lexo-sub007/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var apiToday = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

type apiHarness struct {
	t      *testing.T
	app    *App
	router *gin.Engine
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.MigrateTable(db))

	prev := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() { config.SetDB(prev) })

	logger, _ := test.NewNullLogger()
	app := &App{}
	require.NoError(t, buildApp(app, config.Settings{}, logger))
	app.Invoices.Now = func() time.Time { return apiToday }
	app.Reminders.Now = func() time.Time { return apiToday }

	return &apiHarness{t: t, app: app, router: newRouter(app, config.Settings{}, logger)}
}

func token(t *testing.T, advocateId, role string) string {
	t.Helper()
	tok, err := utils.JwtGenerate(advocateId, "Adv "+advocateId, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *apiHarness) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type errorBody struct {
	Error string          `json:"error"`
	Kind  utils.ErrorKind `json:"kind"`
}

func requireErrorKind(t *testing.T, w *httptest.ResponseRecorder, status int, kind utils.ErrorKind) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	assert.Equal(t, kind, decodeBody[errorBody](t, w).Kind)
}

func (h *apiHarness) createMatter(tok, bar string) *models.Matter {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/v1/matters", tok, map[string]string{
		"title":        "Dlamini v Minister of Police",
		"client_name":  "Sipho Dlamini",
		"client_email": "sipho@example.com",
		"bar":          bar,
	})
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[*models.Matter](h.t, w)
}

func TestHealthzAndReadiness(t *testing.T) {
	h := newAPIHarness(t)
	tok := token(t, "adv-1", "advocate")

	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(http.MethodGet, "/api/v1/invoices", tok, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h.app.MarkReady()
	w = h.do(http.MethodGet, "/api/v1/invoices", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAuthRequired(t *testing.T) {
	h := newAPIHarness(t)
	h.app.MarkReady()

	w := h.do(http.MethodGet, "/api/v1/invoices", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodGet, "/api/v1/invoices", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := utils.JwtGenerate("adv-1", "Adv", "advocate", -time.Minute)
	require.NoError(t, err)
	w = h.do(http.MethodGet, "/api/v1/invoices", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCorrelationHeader(t *testing.T) {
	h := newAPIHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middlewares.CorrelationHeader, "req-42")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(middlewares.CorrelationHeader))

	w = h.do(http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, w.Header().Get(middlewares.CorrelationHeader))
}

func TestInvoiceFlowOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	h.app.MarkReady()
	tok := token(t, "adv-1", "advocate")

	matter := h.createMatter(tok, "Johannesburg")
	assert.Equal(t, "johannesburg", matter.Bar)

	w := h.do(http.MethodPost, fmt.Sprintf("/api/v1/matters/%d/time-entries", matter.ID), tok, map[string]string{
		"date":        "2026-03-07",
		"description": "Drafting heads of argument",
		"hours":       "10",
		"rate":        "1000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(http.MethodGet, fmt.Sprintf("/api/v1/matters/%d/wip", matter.ID), tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodPost, fmt.Sprintf("/api/v1/matters/%d/invoices", matter.ID), tok, map[string]any{"all": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inv := decodeBody[models.Invoice](t, w)
	assert.Equal(t, "JHB-202603-0001", inv.InvoiceNumber)
	assert.True(t, decimal.NewFromInt(11500).Equal(inv.TotalAmount), inv.TotalAmount.String())
	assert.Equal(t, models.InvoiceStatusDraft, inv.Status)

	w = h.do(http.MethodPost, fmt.Sprintf("/api/v1/matters/%d/invoices", matter.ID), tok, map[string]any{"all": true})
	requireErrorKind(t, w, http.StatusUnprocessableEntity, utils.KindNothingToInvoice)

	w = h.do(http.MethodPatch, fmt.Sprintf("/api/v1/invoices/%d/status", inv.ID), tok, map[string]string{"status": "paid"})
	requireErrorKind(t, w, http.StatusConflict, utils.KindInvalidStateTransition)

	w = h.do(http.MethodPatch, fmt.Sprintf("/api/v1/invoices/%d/status", inv.ID), tok, map[string]string{"status": "sent"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodPost, fmt.Sprintf("/api/v1/invoices/%d/payments", inv.ID), tok, map[string]string{
		"amount": "11500",
		"date":   "2026-03-20",
		"method": "eft",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	paid := decodeBody[models.Invoice](t, w)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.DatePaid)
	assert.True(t, paid.DatePaid.Equal(time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)))

	other := token(t, "adv-2", "advocate")
	w = h.do(http.MethodGet, fmt.Sprintf("/api/v1/invoices/%d", inv.ID), other, nil)
	requireErrorKind(t, w, http.StatusForbidden, utils.KindUnauthorized)
}

func TestErrorMapping(t *testing.T) {
	h := newAPIHarness(t)
	h.app.MarkReady()
	tok := token(t, "adv-1", "advocate")

	w := h.do(http.MethodPost, "/api/v1/matters", tok, map[string]string{
		"title":       "Estate late Mokoena",
		"client_name": "Lerato Mokoena",
		"bar":         "gotham",
	})
	requireErrorKind(t, w, http.StatusUnprocessableEntity, utils.KindUnknownJurisdiction)

	w = h.do(http.MethodGet, "/api/v1/invoices/abc", tok, nil)
	requireErrorKind(t, w, http.StatusBadRequest, utils.KindValidation)

	w = h.do(http.MethodGet, "/api/v1/invoices/999", tok, nil)
	requireErrorKind(t, w, http.StatusNotFound, utils.KindNotFound)

	w = h.do(http.MethodGet, "/api/v1/invoices?status=pending", tok, nil)
	requireErrorKind(t, w, http.StatusBadRequest, utils.KindValidation)

	w = h.do(http.MethodGet, "/api/v1/reminders/upcoming?horizon_days=-1", tok, nil)
	requireErrorKind(t, w, http.StatusBadRequest, utils.KindValidation)

	w = h.do(http.MethodGet, "/api/v1/nowhere", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessRemindersRequiresSchedulerRole(t *testing.T) {
	h := newAPIHarness(t)
	h.app.MarkReady()

	w := h.do(http.MethodPost, "/api/v1/internal/reminders/process", token(t, "adv-1", "advocate"), nil)
	requireErrorKind(t, w, http.StatusForbidden, utils.KindUnauthorized)

	w = h.do(http.MethodPost, "/api/v1/internal/reminders/process", token(t, "cron", "scheduler"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeBody[workflow.ReminderRunResult](t, w)
	assert.False(t, result.Skipped)
	assert.Zero(t, result.Failed)
}

func TestVATAuditExportOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	h.app.MarkReady()
	tok := token(t, "adv-1", "advocate")

	w := h.do(http.MethodGet, "/api/v1/vat-audit/export?from=2026-01-01&to=2026-12-31", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "vat_audit_20260101_20261231.xlsx")
	assert.NotZero(t, w.Body.Len())

	w = h.do(http.MethodGet, "/api/v1/vat-audit?from=yesterday", tok, nil)
	requireErrorKind(t, w, http.StatusBadRequest, utils.KindValidation)
}
