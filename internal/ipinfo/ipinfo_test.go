package ipinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayush/referral-rewards/backend/internal/logging"
)

func TestResolver_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"203.0.113.24"}`))
	}))
	defer srv.Close()

	res := NewResolver(srv.URL, srv.Client(), logging.Discard()).Resolve(context.Background())
	if res.Err != nil || res.IP != "203.0.113.24" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResolver_FallsBack(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
		"empty ip": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ip":""}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			res := NewResolver(srv.URL, srv.Client(), logging.Discard()).Resolve(context.Background())
			if res.IP != FallbackIP || res.Err == nil {
				t.Fatalf("expected fallback with error, got %+v", res)
			}
		})
	}
}

func TestResolver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewResolver(url, nil, logging.Discard()).Resolve(context.Background())
	if res.IP != FallbackIP || res.Err == nil {
		t.Fatalf("expected fallback with error, got %+v", res)
	}
}
