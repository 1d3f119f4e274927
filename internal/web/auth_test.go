package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authProtected(key string) http.Handler {
	return APIKeyAuth(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAPIKeyAuth(t *testing.T) {
	cases := []struct {
		name   string
		key    string
		header http.Header
		want   int
	}{
		{"no key configured", "", http.Header{}, http.StatusNoContent},
		{"bearer token", "s3cret", http.Header{"Authorization": {"Bearer s3cret"}}, http.StatusNoContent},
		{"x-api-key header", "s3cret", http.Header{"X-Api-Key": {"s3cret"}}, http.StatusNoContent},
		{"wrong key", "s3cret", http.Header{"Authorization": {"Bearer nope"}}, http.StatusUnauthorized},
		{"missing key", "s3cret", http.Header{}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
			for k, vs := range tc.header {
				for _, v := range vs {
					req.Header.Set(k, v)
				}
			}
			rec := httptest.NewRecorder()
			authProtected(tc.key).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
