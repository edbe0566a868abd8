package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/tasktracker/internal/model"
)

type stubAuthenticator struct {
	tokens map[string]model.Identity
	err    error
	calls  int
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (model.Identity, error) {
	s.calls++
	if s.err != nil {
		return model.Identity{}, s.err
	}
	identity, ok := s.tokens[token]
	if !ok {
		return model.Identity{}, model.NewInvalidCredentialError()
	}
	return identity, nil
}

func TestAuthMiddleware_InjectsIdentity(t *testing.T) {
	authn := &stubAuthenticator{tokens: map[string]model.Identity{"good": {ID: 7, Role: model.RoleUser}}}

	var got model.Identity
	handler := NewAuthMiddleware(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got.ID != 7 {
		t.Errorf("identity = %+v, want ID 7", got)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantCalls int
	}{
		{"missing header", "", 0},
		{"wrong scheme", "Basic dXNlcjpwYXNz", 0},
		{"scheme only", "Bearer", 0},
		{"blank token", "Bearer   ", 0},
		{"unknown token", "Bearer forged", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn := &stubAuthenticator{tokens: map[string]model.Identity{"good": {ID: 7}}}
			handler := NewAuthMiddleware(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if authn.calls != tt.wantCalls {
				t.Errorf("Authenticate calls = %d, want %d", authn.calls, tt.wantCalls)
			}
		})
	}
}

func TestAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	authn := &stubAuthenticator{tokens: map[string]model.Identity{"good": {ID: 7}}}
	handler := NewAuthMiddleware(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer good")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
}

func TestAuthMiddleware_UserStoreFailure_Returns500(t *testing.T) {
	authn := &stubAuthenticator{err: errors.New("db down")}
	handler := NewAuthMiddleware(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestIdentityFromContext_Empty(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("expected no identity in empty context")
	}
}
