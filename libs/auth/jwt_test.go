package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClaims(tenant string) Claims {
	return Claims{
		Sub:      "dispatcher-1",
		TenantID: tenant,
		Role:     "dispatcher",
		Iat:      time.Now().Unix(),
		Exp:      time.Now().Add(time.Hour).Unix(),
	}
}

func TestHS256RoundTrip(t *testing.T) {
	claims := testClaims("12")
	token, err := SignHS256(claims, "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.TenantID != claims.TenantID || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
	if _, err := ParseAndVerifyHS256(token, ""); err == nil {
		t.Fatal("expected verification error with empty secret")
	}
}

func TestHS256Expired(t *testing.T) {
	claims := testClaims("12")
	claims.Exp = time.Now().Add(-time.Minute).Unix()
	token, err := SignHS256(claims, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRS256Verify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	claims := testClaims("34")
	token := signRS256(t, claims, key, "kid-1")

	parsed, err := VerifyRS256(token, &key.PublicKey)
	if err != nil {
		t.Fatalf("VerifyRS256 failed: %v", err)
	}
	if parsed.TenantID != "34" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	header, err := ParseHeader(token)
	if err != nil || header.Kid != "kid-1" || header.Alg != "RS256" {
		t.Fatalf("unexpected header %+v (err=%v)", header, err)
	}
}

func TestJWKSClientFetchesKeys(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "kid-1",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	client := NewJWKSClient(srv.URL, time.Minute)
	pub, err := client.Get("kid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 || pub.E != key.PublicKey.E {
		t.Fatal("fetched key does not match")
	}
	if _, err := client.Get("kid-unknown"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func signRS256(t *testing.T, claims Claims, key *rsa.PrivateKey, kid string) string {
	t.Helper()
	unsigned, err := encodeUnsigned(map[string]string{"alg": "RS256", "typ": "JWT", "kid": kid}, claims)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	hash := sha256.Sum256([]byte(unsigned))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	return unsigned + "." + base64.RawURLEncoding.EncodeToString(sig)
}
