package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRefresherSuccess(t *testing.T) {
	var gotForm map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"refresh_token": r.PostFormValue("refresh_token"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	r := NewRefresher("client-id", "client-secret", WithTokenURL(server.URL))

	token, err := r.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if gotForm["grant_type"] != "refresh_token" {
		t.Errorf("grant_type = %q, want %q", gotForm["grant_type"], "refresh_token")
	}
	if gotForm["refresh_token"] != "old-refresh" {
		t.Errorf("refresh_token = %q, want %q", gotForm["refresh_token"], "old-refresh")
	}
	if gotForm["client_id"] != "client-id" || gotForm["client_secret"] != "client-secret" {
		t.Errorf("client credentials not sent: %v", gotForm)
	}

	if token.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q, want %q", token.AccessToken, "new-access")
	}
	if token.TTL != time.Hour {
		t.Errorf("TTL = %v, want %v", token.TTL, time.Hour)
	}
	if token.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty (no rotation)", token.RefreshToken)
	}
	if token.IssuedAt.IsZero() {
		t.Error("IssuedAt not set")
	}
}

func TestRefresherRotation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"rotated","expires_in":3600}`))
	}))
	defer server.Close()

	r := NewRefresher("id", "secret", WithTokenURL(server.URL))

	token, err := r.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if token.RefreshToken != "rotated" {
		t.Errorf("RefreshToken = %q, want %q", token.RefreshToken, "rotated")
	}
}

func TestRefresherDefaultTTL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access"}`))
	}))
	defer server.Close()

	r := NewRefresher("id", "secret", WithTokenURL(server.URL))

	token, err := r.Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if token.TTL != fallbackTTL {
		t.Errorf("TTL = %v, want fallback %v", token.TTL, fallbackTTL)
	}
}

func TestRefresherErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "invalid grant",
			status:  http.StatusBadRequest,
			body:    `{"error":"invalid_grant","error_description":"Refresh token revoked"}`,
			wantErr: ErrRefreshDenied,
		},
		{
			name:    "unauthorized client",
			status:  http.StatusUnauthorized,
			body:    `{"error":"invalid_client"}`,
			wantErr: ErrRefreshDenied,
		},
		{
			name:    "rate limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error":"rate limited"}`,
			wantErr: ErrUpstreamUnavailable,
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `upstream exploded`,
			wantErr: ErrUpstreamUnavailable,
		},
		{
			name:    "bad gateway",
			status:  http.StatusBadGateway,
			body:    ``,
			wantErr: ErrUpstreamUnavailable,
		},
		{
			name:    "garbage success body",
			status:  http.StatusOK,
			body:    `not json`,
			wantErr: ErrUpstreamUnavailable,
		},
		{
			name:    "missing access token",
			status:  http.StatusOK,
			body:    `{"token_type":"Bearer"}`,
			wantErr: ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			r := NewRefresher("id", "secret", WithTokenURL(server.URL))

			_, err := r.Refresh(context.Background(), "some-refresh")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Refresh() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRefresherNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	r := NewRefresher("id", "secret", WithTokenURL(server.URL))

	_, err := r.Refresh(context.Background(), "some-refresh")
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Refresh() error = %v, want ErrUpstreamUnavailable", err)
	}
}
