package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/meridian-crm/internal/challan"
	"github.com/meridian-crm/meridian-crm/internal/conversion"
	"github.com/meridian-crm/meridian-crm/internal/observability"
	"github.com/meridian-crm/meridian-crm/internal/rbac"
	"github.com/meridian-crm/meridian-crm/internal/shared"
	"github.com/meridian-crm/meridian-crm/internal/stock"
	_ "github.com/meridian-crm/meridian-crm/testing"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.Default()
	guard := rbac.New(logger)
	return NewRouter(RouterParams{
		Logger:            logger,
		Config:            &Config{AppEnv: "test"},
		ChallanHandler:    challan.NewHandler(logger, challan.NewService(nil, nil, nil, nil, challan.ServiceConfig{}), guard),
		StockHandler:      stock.NewHandler(logger, stock.NewLedger(nil, nil, nil, stock.LedgerConfig{}), guard),
		ConversionHandler: conversion.NewHandler(logger, conversion.NewService(nil, nil, nil), guard),
		Metrics:           observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGatedRoutesRejectAnonymousRequests(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/challans", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGatedRoutesRejectMissingPermission(t *testing.T) {
	router := newTestRouter(t)

	// Managers cannot post manual stock corrections.
	req := httptest.NewRequest(http.MethodPost, "/stock/movements", nil)
	req.Header.Set(HeaderEmployeeID, "7")
	req.Header.Set(HeaderEmployeeRole, shared.RoleManager)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestActorMiddlewareParsesGatewayHeaders(t *testing.T) {
	var got shared.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderEmployeeID, "42")
	req.Header.Set(HeaderEmployeeRole, shared.RoleWarehouse)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, int64(42), got.EmployeeID)
	require.Equal(t, shared.RoleWarehouse, got.Role)
}

func TestActorMiddlewareIgnoresMalformedHeaders(t *testing.T) {
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := shared.ActorFromContext(r.Context())
		require.False(t, ok)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderEmployeeID, "not-a-number")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}
