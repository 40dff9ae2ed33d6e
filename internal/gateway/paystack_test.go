package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"artwork-orders/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "buyer@example.com", body["email"])
		assert.Equal(t, float64(550000), body["amount"])
		assert.Equal(t, "NGN", body["currency"])

		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout/abc","access_code":"ac","reference":"ref-1"}}`))
	}))
	defer srv.Close()

	c := NewPaystackClient(srv.URL, "sk_test", time.Second)
	tx, err := c.InitializeTransaction(context.Background(), "buyer@example.com", 550000, "NGN")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", tx.Reference)
	assert.Equal(t, "https://checkout/abc", tx.AuthorizationURL)
}

func TestInitializeTransactionRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
	}))
	defer srv.Close()

	c := NewPaystackClient(srv.URL, "bad", time.Second)
	_, err := c.InitializeTransaction(context.Background(), "buyer@example.com", 100, "NGN")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestInitializeTransactionMissingReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"data":{}}`))
	}))
	defer srv.Close()

	c := NewPaystackClient(srv.URL, "sk", time.Second)
	_, err := c.InitializeTransaction(context.Background(), "buyer@example.com", 100, "NGN")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestInitializeTransactionTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewPaystackClient(srv.URL, "sk", 20*time.Millisecond)
	_, err := c.InitializeTransaction(context.Background(), "buyer@example.com", 100, "NGN")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestVerifyTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/verify/ref-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"data":{"reference":"ref-9","status":"success","amount":500000,"currency":"NGN"}}`))
	}))
	defer srv.Close()

	c := NewPaystackClient(srv.URL, "sk", time.Second)
	v, err := c.VerifyTransaction(context.Background(), "ref-9")
	require.NoError(t, err)
	assert.True(t, v.Succeeded())
	assert.Equal(t, int64(500000), v.Amount)
}

func TestVerifySignature(t *testing.T) {
	c := NewPaystackClient("http://unused", "sk_secret", time.Second)
	body := []byte(`{"event":"charge.success"}`)

	mac := hmac.New(sha512.New, []byte("sk_secret"))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, c.VerifySignature(body, sig))
	assert.False(t, c.VerifySignature(body, "deadbeef"))
}
