package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/request"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		wantEvent     string
		wantLevel     zapcore.Level
	}{
		{"GET request", "GET", "/api/todos", http.StatusOK, "http_request", zapcore.InfoLevel},
		{"404 request", "GET", "/notfound", http.StatusNotFound, "http_request", zapcore.InfoLevel},
		{"invalid signature", "POST", "/slack/events", http.StatusUnauthorized, "security_event", zapcore.WarnLevel},
		{"bad token", "GET", "/api/todos", http.StatusForbidden, "security_event", zapcore.WarnLevel},
		{"rate limited", "GET", "/api/todos", http.StatusTooManyRequests, "rate_limit_violation", zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zapcore.DebugLevel)
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.handlerStatus)
			})

			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			Logging(zap.New(core))(handler).ServeHTTP(w, req)

			if w.Code != tt.handlerStatus {
				t.Errorf("Expected status %d, got %d", tt.handlerStatus, w.Code)
			}
			entries := logs.FilterMessage(tt.wantEvent).All()
			if len(entries) != 1 {
				t.Fatalf("Expected one %s entry, got %d", tt.wantEvent, logs.Len())
			}
			if entries[0].Level != tt.wantLevel {
				t.Errorf("Expected level %v, got %v", tt.wantLevel, entries[0].Level)
			}
			if got := entries[0].ContextMap()["status_code"]; got != int64(tt.handlerStatus) {
				t.Errorf("Expected status_code %d, got %v", tt.handlerStatus, got)
			}
		})
	}
}

func TestLoggingRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = request.RequestID(r.Context())
	})
	mw := Logging(zap.NewNop())(handler)

	t.Run("generated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/healthz", nil)
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, req)

		got := w.Header().Get(RequestIDHeader)
		if got == "" {
			t.Fatal("Expected a generated request id")
		}
		if seen != got {
			t.Errorf("Handler saw request id %q, response carried %q", seen, got)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		mw.ServeHTTP(w, req)

		if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("Expected echoed request id abc-123, got %q", got)
		}
		if seen != "abc-123" {
			t.Errorf("Handler saw request id %q", seen)
		}
	})
}

func TestLoggingResponseWriter(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("test"))
	})

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	Logging(zap.New(core))(handler).ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}
	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one http_request entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["status_code"]; got != int64(http.StatusCreated) {
		t.Errorf("Expected first status to be logged, got %v", got)
	}
}
