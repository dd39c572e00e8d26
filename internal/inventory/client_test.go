package inventory

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testKeyBase64(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return base64.StdEncoding.EncodeToString(pemBytes), key
}

func TestClientAssertionSignedAndWellFormed(t *testing.T) {
	keyB64, key := testKeyBase64(t)
	c := NewClient(Options{
		ClientID:         "BUSINESSAPI.abc123",
		KeyID:            "key-1",
		PrivateKeyBase64: keyB64,
	}, noopLogger())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assertion, err := c.buildClientAssertion(now)
	if err != nil {
		t.Fatalf("build assertion: %v", err)
	}

	parts := strings.Split(assertion, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 JWT segments, got %d", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	var header map[string]string
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if header["alg"] != "ES256" || header["kid"] != "key-1" {
		t.Fatalf("unexpected header %v", header)
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	if claims["iss"] != "BUSINESSAPI.abc123" || claims["sub"] != "BUSINESSAPI.abc123" {
		t.Fatalf("iss and sub must both equal the client id: %v", claims)
	}
	exp := int64(claims["exp"].(float64))
	iat := int64(claims["iat"].(float64))
	if exp-iat != int64(assertionTTL/time.Second) {
		t.Fatalf("expected 15 minute assertion lifetime, got %d seconds", exp-iat)
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("expected 64 byte raw signature, got %d", len(sig))
	}
	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if !ecdsa.Verify(&key.PublicKey, digest[:], r, s) {
		t.Fatal("signature does not verify against the signing key")
	}
}

func newInventoryServer(t *testing.T, tokenRequests *int, pages map[string]orgDevicesPayload) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		*tokenRequests++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse token form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Fatalf("unexpected grant_type %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_assertion_type") != clientAssertionType {
			t.Fatalf("unexpected client_assertion_type %q", r.PostForm.Get("client_assertion_type"))
		}
		if r.PostForm.Get("client_assertion") == "" {
			t.Fatal("missing client_assertion")
		}
		if r.PostForm.Get("scope") != "business.api" {
			t.Fatalf("unexpected scope %q", r.PostForm.Get("scope"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/orgDevices", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		payload, ok := pages[r.URL.Query().Get("cursor")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
	return httptest.NewServer(mux)
}

type orgDevicesPayload struct {
	Data []map[string]any `json:"data"`
	Meta map[string]any   `json:"meta"`
}

func deviceJSON(serial, family, model, capacity string) map[string]any {
	return map[string]any{
		"type": "orgDevices",
		"id":   serial,
		"attributes": map[string]any{
			"serialNumber":   serial,
			"productFamily":  family,
			"deviceModel":    model,
			"productType":    "MKGR3LL/A",
			"deviceCapacity": capacity,
			"color":          "Silver",
			"status":         "ASSIGNED",
			"orderDateTime":  "2024-06-01T10:00:00Z",
		},
	}
}

func TestFetchDevicesPaged(t *testing.T) {
	keyB64, _ := testKeyBase64(t)
	tokenRequests := 0
	srv := newInventoryServer(t, &tokenRequests, map[string]orgDevicesPayload{
		"": {
			Data: []map[string]any{deviceJSON("C02AAA", "Mac", "MacBook Pro 14", "512GB")},
			Meta: map[string]any{"paging": map[string]any{"limit": 1, "nextCursor": "cur-2"}},
		},
		"cur-2": {
			Data: []map[string]any{deviceJSON("F4GBBB", "iPhone", "iPhone 14", "128GB")},
			Meta: map[string]any{"paging": map[string]any{"limit": 1}},
		},
	})
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:          srv.URL,
		TokenURL:         srv.URL + "/token",
		ClientID:         "BUSINESSAPI.abc123",
		KeyID:            "key-1",
		PrivateKeyBase64: keyB64,
		PageLimit:        1,
		Timeout:          time.Second,
	}, noopLogger())

	first, err := c.FetchDevices(context.Background(), "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Devices) != 1 || first.Devices[0].Serial != "C02AAA" {
		t.Fatalf("unexpected first page %+v", first)
	}
	if first.Devices[0].Storage != "512GB" {
		t.Fatalf("deviceCapacity should map to storage, got %q", first.Devices[0].Storage)
	}
	if first.Devices[0].PurchaseDate == nil {
		t.Fatal("orderDateTime should map to purchase date")
	}
	if first.NextCursor != "cur-2" {
		t.Fatalf("expected next cursor cur-2, got %q", first.NextCursor)
	}

	second, err := c.FetchDevices(context.Background(), first.NextCursor)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Devices) != 1 || second.Devices[0].Serial != "F4GBBB" {
		t.Fatalf("unexpected second page %+v", second)
	}
	if second.NextCursor != "" {
		t.Fatalf("expected listing exhausted, got cursor %q", second.NextCursor)
	}

	if tokenRequests != 1 {
		t.Fatalf("token should be cached across pages, saw %d token requests", tokenRequests)
	}
}

func TestFetchDevicesHTTPError(t *testing.T) {
	keyB64, _ := testKeyBase64(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-123", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/orgDevices", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"errors": []map[string]string{{"title": "Forbidden", "detail": "scope missing"}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:          srv.URL,
		TokenURL:         srv.URL + "/token",
		ClientID:         "BUSINESSAPI.abc123",
		KeyID:            "key-1",
		PrivateKeyBase64: keyB64,
		Timeout:          time.Second,
	}, noopLogger())

	_, err := c.FetchDevices(context.Background(), "")
	if err == nil {
		t.Fatal("HTTP 403 should surface an error")
	}
	if !strings.Contains(err.Error(), "scope missing") {
		t.Fatalf("error should carry API detail, got %v", err)
	}
}

func TestTokenErrorSurfaced(t *testing.T) {
	keyB64, _ := testKeyBase64(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client", "error_description": "assertion rejected"})
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:          srv.URL,
		TokenURL:         srv.URL,
		ClientID:         "BUSINESSAPI.abc123",
		KeyID:            "key-1",
		PrivateKeyBase64: keyB64,
		Timeout:          time.Second,
	}, noopLogger())

	_, err := c.FetchDevices(context.Background(), "")
	if err == nil {
		t.Fatal("token failure should surface an error")
	}
	if !strings.Contains(err.Error(), "assertion rejected") {
		t.Fatalf("error should carry token endpoint detail, got %v", err)
	}
}

func TestMissingKeyMaterial(t *testing.T) {
	c := NewClient(Options{ClientID: "BUSINESSAPI.abc123", KeyID: "key-1"}, noopLogger())
	if _, err := c.FetchDevices(context.Background(), ""); err == nil {
		t.Fatal("missing key material should return an error")
	}
}
