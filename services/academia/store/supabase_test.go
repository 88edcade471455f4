package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func supabaseAgainst(t *testing.T, handler http.HandlerFunc) Supabase {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSupabase(SupabaseConfig{Url: srv.URL, Key: "anon"}, nil)
}

func TestSupabaseRejectedRequestIsNotMissingSession(t *testing.T) {
	s := supabaseAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api key"}`))
	})

	_, err := s.GetSessionMaterial(context.Background(), "a@srmist.edu.in")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound, "an auth failure is not an absent session")
}

func TestSupabaseMissingSessionRow(t *testing.T) {
	s := supabaseAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	_, err := s.GetSessionMaterial(context.Background(), "a@srmist.edu.in")
	require.ErrorIs(t, err, ErrNotFound)
}
