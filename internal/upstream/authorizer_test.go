package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPAuthorizer(t *testing.T) {
	_, err := NewHTTPAuthorizer("ftp://teams")
	assert.Error(t, err)

	_, err = NewHTTPAuthorizer("://bad")
	assert.Error(t, err)

	a, err := NewHTTPAuthorizer("http://teams.internal/")
	require.NoError(t, err)
	assert.Equal(t, "http://teams.internal", a.base)
}

func TestHTTPAuthorizerCanAccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rooms/ds-1/members/alice":
			w.Write([]byte(`{"allowed":true}`))
		case "/rooms/ds-1/members/bob":
			w.Write([]byte(`{"allowed":false}`))
		case "/rooms/ds-1/members/carol":
			w.WriteHeader(http.StatusForbidden)
		case "/rooms/broken/members/alice":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	auth, err := NewHTTPAuthorizer(server.URL)
	require.NoError(t, err)

	tests := []struct {
		name      string
		user      string
		room      string
		want      bool
		wantError bool
	}{
		{name: "member", user: "alice", room: "ds-1", want: true},
		{name: "explicit denial", user: "bob", room: "ds-1"},
		{name: "forbidden status", user: "carol", room: "ds-1"},
		{name: "unknown room", user: "alice", room: "ds-9"},
		{name: "upstream failure", user: "alice", room: "broken", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := auth.CanAccess(context.Background(), tt.user, tt.room)
			if tt.wantError {
				assert.Error(t, err)
				assert.False(t, ok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
