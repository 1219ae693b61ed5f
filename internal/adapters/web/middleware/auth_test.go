package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		hash   []byte
		header string
		query  string
		want   int
	}{
		{name: "disabled", want: http.StatusOK},
		{name: "missing token", hash: hash, want: http.StatusUnauthorized},
		{name: "wrong token", hash: hash, header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "not bearer", hash: hash, header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "header token", hash: hash, header: "Bearer s3cret", want: http.StatusOK},
		{name: "query token", hash: hash, query: "?token=s3cret", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/status"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(tt.hash)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("abc")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword(hash, []byte("abc")))
}
