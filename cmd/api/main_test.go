package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/easydollars/easydollars-api/internal/config"
	"github.com/easydollars/easydollars-api/internal/domain/account"
	"github.com/easydollars/easydollars-api/internal/domain/conversion"
	"github.com/easydollars/easydollars-api/internal/domain/ledger"
	"github.com/easydollars/easydollars-api/internal/domain/machine"
	"github.com/easydollars/easydollars-api/internal/domain/payment"
	"github.com/easydollars/easydollars-api/internal/domain/referral"
	"github.com/easydollars/easydollars-api/internal/domain/withdrawal"
	"github.com/easydollars/easydollars-api/internal/middleware"
	"github.com/easydollars/easydollars-api/internal/pkg/feed"
	"github.com/easydollars/easydollars-api/internal/pkg/jwt"
)

// Only requests that stop before reaching a service are exercised here, so
// the handlers are built without one.
func testRouter(t *testing.T) (http.Handler, *jwt.Service) {
	t.Helper()
	jwtService := jwt.NewService("router-test-secret")
	h := handlers{
		auth:        middleware.Auth(jwtService),
		accounts:    account.NewHandler(nil),
		ledger:      ledger.NewHandler(nil),
		machines:    machine.NewHandler(nil, 24*time.Hour),
		payments:    payment.NewHandler(nil),
		conversions: conversion.NewHandler(nil),
		withdrawals: withdrawal.NewHandler(nil),
		referrals:   referral.NewHandler(nil),
		feed:        feed.NewHandler(nil),
	}
	return newRouter(&config.Config{AllowedOrigins: []string{"http://localhost:3000"}}, h), jwtService
}

func TestRouterMountsEveryRoute(t *testing.T) {
	router, _ := testRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/machines/catalog", http.StatusOK},
		{http.MethodPost, "/api/v1/accounts/signup", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/accounts/me", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/ledger/balances", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/ledger/entries", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/machines/purchase", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/machines", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/machines/123/activate", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/machines/123/claim", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/payments", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/conversions", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/withdrawals", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/withdrawals", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/referrals", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/feed", http.StatusUnauthorized},
		{http.MethodGet, "/admin/withdrawals", http.StatusUnauthorized},
		{http.MethodPost, "/admin/withdrawals/123/approve", http.StatusUnauthorized},
		{http.MethodPost, "/admin/withdrawals/123/reject", http.StatusUnauthorized},
		{http.MethodPatch, "/admin/accounts/123/tier", http.StatusUnauthorized},
		{http.MethodGet, "/webhooks/payment", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestPurchaseRouteReachesPaymentHandler(t *testing.T) {
	router, jwtService := testRouter(t)
	token, err := jwtService.Issue(uuid.New(), "user", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/machines/purchase", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// Missing Idempotency-Key is rejected by the payment handler itself.
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, jwtService := testRouter(t)
	token, err := jwtService.Issue(uuid.New(), "user", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/withdrawals", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}
