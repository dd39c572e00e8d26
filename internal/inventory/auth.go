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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	assertionTTL        = 15 * time.Minute
	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// loadPrivateKey reads the EC P-256 signing key from the configured
// base64 blob or PEM file, base64 taking precedence.
func (c *Client) loadPrivateKey() (*ecdsa.PrivateKey, error) {
	var pemBytes []byte
	switch {
	case c.opts.PrivateKeyBase64 != "":
		decoded, err := base64.StdEncoding.DecodeString(c.opts.PrivateKeyBase64)
		if err != nil {
			return nil, fmt.Errorf("decode private key base64: %w", err)
		}
		pemBytes = decoded
	case c.opts.PrivateKeyPath != "":
		data, err := os.ReadFile(c.opts.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		pemBytes = data
	default:
		return nil, errors.New("either private key path or base64 must be provided")
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("private key is not valid PEM")
	}

	var key *ecdsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		ec, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key must be an EC key")
		}
		key = ec
	} else if ec, secErr := x509.ParseECPrivateKey(block.Bytes); secErr == nil {
		key = ec
	} else {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	if key.Curve != elliptic.P256() {
		return nil, errors.New("private key curve must be P-256")
	}
	return key, nil
}

// buildClientAssertion signs an ES256 JWT with iss and sub both set to
// the client id, the way the token endpoint requires.
func (c *Client) buildClientAssertion(now time.Time) (string, error) {
	key, err := c.loadPrivateKey()
	if err != nil {
		return "", err
	}

	header := map[string]any{
		"alg": "ES256",
		"kid": c.opts.KeyID,
	}
	claims := map[string]any{
		"iss": c.opts.ClientID,
		"sub": c.opts.ClientID,
		"aud": c.opts.Audience,
		"iat": now.Unix(),
		"exp": now.Add(assertionTTL).Unix(),
		"jti": newJTI(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	r, s, err := ecdsa.Sign(rand.Reader, key, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}

	// JOSE ES256 signature is r || s, each padded to 32 bytes.
	sig := make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])

	return signingInput + "." + enc.EncodeToString(sig), nil
}

// accessToken returns a cached token or exchanges a fresh client
// assertion for one. Tokens are reused until shortly before expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.tokenExpiry.Add(-30*time.Second)) {
		return c.token, nil
	}

	assertion, err := c.buildClientAssertion(now)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.opts.ClientID)
	form.Set("client_assertion_type", clientAssertionType)
	form.Set("client_assertion", assertion)
	form.Set("scope", c.opts.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseHTTPError("token request", resp.StatusCode, payload)
	}

	var tok tokenResponse
	if err := json.Unmarshal(payload, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.logger.Debug().Int64("expires_in", tok.ExpiresIn).Msg("obtained inventory access token")
	return c.token, nil
}

func newJTI() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("jti-%d", time.Now().UnixNano())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
