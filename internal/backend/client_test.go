// ABOUTME: Tests for the backend REST client against an httptest server.
// ABOUTME: Covers bearer auth, decoding, not-linked mapping, and error surfacing.

package backend

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_UserByPlatform(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"acct-7","name":"Maria Lopez"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token", time.Second, nil)
	account, err := c.UserByPlatform(t.Context(), "telegram", "12345")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "/api/v1/users/by-platform/telegram/12345", gotPath)
	assert.Equal(t, "acct-7", account.ID)
	assert.Equal(t, "Maria Lopez", account.Name)
}

func TestClient_UserByPlatformNotLinked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second, nil)
	_, err := c.UserByPlatform(t.Context(), "whatsapp", "5551234")
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestClient_NotifySupportRequest(t *testing.T) {
	var gotBody string
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second, nil)
	err := c.NotifySupportRequest(t.Context(), "acct-7")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.JSONEq(t, `{"userId":"acct-7"}`, gotBody)
}

func TestClient_MenuAndOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/menu":
			_, _ = w.Write([]byte(`[{"id":"m1","name":"Encebollado","category":"Soups","price":4.5}]`))
		case "/api/v1/orders":
			assert.Equal(t, "acct-7", r.URL.Query().Get("userId"))
			_, _ = w.Write([]byte(`[{"id":"o1","status":"delivered","total":12.75,"createdAt":"2024-03-01T12:00:00Z"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second, nil)

	menu, err := c.Menu(t.Context())
	require.NoError(t, err)
	require.Len(t, menu, 1)
	assert.Equal(t, "Encebollado", menu[0].Name)
	assert.InDelta(t, 4.5, menu[0].Price, 0.001)

	orders, err := c.Orders(t.Context(), "acct-7")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "delivered", orders[0].Status)
}

func TestClient_ServerErrorIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second, nil)
	_, err := c.Menu(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
}
