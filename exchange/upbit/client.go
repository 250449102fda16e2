// Package upbit implements the signed REST client for the Upbit exchange
// and the core.Broker capability surface on top of it.
package upbit

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/dawoonj/krwbot/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const remainingReqHeader = "Remaining-Req"

// APIError is a non-2xx response from the exchange. It carries enough to
// format both dashboard alerts and chat replies without re-parsing the body.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Name != "" || e.Message != "" {
		return fmt.Sprintf("upbit: HTTP %d %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("upbit: HTTP %d: %s", e.StatusCode, e.Body)
}

// Params are request parameters. Slice values are serialized as repeated
// "key[]=value" pairs. Zero values mark a parameter as unset: nil, empty
// strings and zero ints are dropped, so optional query fields pass through
// without an omitempty layer. A literal zero must be sent as the string "0".
type Params map[string]any

// Client issues authenticated HTTP calls to the exchange. It owns no mutable
// domain state beyond the last observed rate-limit snapshot, and performs no
// retries: trading endpoints are not idempotent without an identifier.
type Client struct {
	settings core.UpbitSettings
	http     *http.Client
	log      core.Logger

	mu            sync.Mutex
	lastRemaining map[string]string
}

func NewClient(settings core.UpbitSettings, log core.Logger) *Client {
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	return &Client{
		settings: settings,
		http:     &http.Client{Timeout: settings.Timeout},
		log:      log,
	}
}

type pair struct {
	key   string
	value string
}

// normalize flattens params into key/value pairs: slices become repeated
// "key[]" entries, nils and empty strings are dropped, keys are sorted so
// the canonical string is stable. Slice element order is preserved.
func normalize(params Params) []pair {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var pairs []pair
	for _, key := range keys {
		switch value := params[key].(type) {
		case nil:
		case []string:
			listKey := key
			if !strings.HasSuffix(listKey, "[]") {
				listKey += "[]"
			}
			for _, item := range value {
				if item == "" {
					continue
				}
				pairs = append(pairs, pair{listKey, item})
			}
		case string:
			if value != "" {
				pairs = append(pairs, pair{key, value})
			}
		case int:
			if value != 0 {
				pairs = append(pairs, pair{key, fmt.Sprintf("%d", value)})
			}
		case float64:
			pairs = append(pairs, pair{key, decimal.NewFromFloat(value).String()})
		default:
			pairs = append(pairs, pair{key, fmt.Sprint(value)})
		}
	}
	return pairs
}

// canonicalQuery joins pairs without percent-escaping. The exchange hashes
// the literal query form (e.g. "states[]=wait"), so the string used for
// signing must match the wire bytes exactly.
func canonicalQuery(pairs []pair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.key+"="+p.value)
	}
	return strings.Join(parts, "&")
}

func (c *Client) signToken(queryString string) (string, error) {
	if c.settings.AccessKey == "" || c.settings.SecretKey == "" {
		return "", core.ErrCredentialsMissing
	}

	claims := jwt.MapClaims{
		"access_key": c.settings.AccessKey,
		"nonce":      uuid.NewString(),
	}
	if queryString != "" {
		hash := sha512.Sum512([]byte(queryString))
		claims["query_hash"] = hex.EncodeToString(hash[:])
		claims["query_hash_alg"] = "SHA512"
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).
		SignedString([]byte(c.settings.SecretKey))
}

// Do performs one HTTP round trip. Query params and a JSON body are mutually
// exclusive; for body-bearing writes the signature hash covers the body
// fields in canonical query form.
func (c *Client) Do(ctx context.Context, method, path string, params, body Params, auth bool) (json.RawMessage, error) {
	if params != nil && body != nil {
		return nil, core.ErrParamsAndBody
	}

	queryPairs := normalize(params)
	hashSource := queryPairs
	if body != nil {
		hashSource = normalize(body)
	}
	queryString := canonicalQuery(hashSource)

	var reqBody io.Reader
	if body != nil {
		payload := make(map[string]any, len(body))
		for key, value := range body {
			if value == nil {
				continue
			}
			if s, ok := value.(string); ok && s == "" {
				continue
			}
			payload[key] = value
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.settings.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if len(queryPairs) > 0 {
		// RawQuery is set verbatim so brackets stay unescaped on the wire.
		req.URL.RawQuery = canonicalQuery(queryPairs)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, err := c.signToken(queryString)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.updateRemaining(resp.Header.Get(remainingReqHeader))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp.StatusCode, raw)
		c.log.WithFields(map[string]any{
			"status": resp.StatusCode,
			"path":   path,
		}).Error("upbit api error: ", apiErr.Name, " ", apiErr.Message)
		return nil, apiErr
	}

	return raw, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}

	var payload struct {
		Error struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Name = payload.Error.Name
		apiErr.Message = payload.Error.Message
	}
	return apiErr
}

// parseRemaining splits a "group=default; min=900; sec=29" advisory header.
func parseRemaining(value string) map[string]string {
	parsed := make(map[string]string)
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		parsed[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return parsed
}

func (c *Client) updateRemaining(header string) {
	if header == "" {
		return
	}
	parsed := parseRemaining(header)
	if len(parsed) == 0 {
		return
	}
	c.mu.Lock()
	c.lastRemaining = parsed
	c.mu.Unlock()
}

// LastRemaining returns the most recent rate-limit advisory, for diagnostics
// only.
func (c *Client) LastRemaining() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRemaining == nil {
		return nil
	}
	snapshot := make(map[string]string, len(c.lastRemaining))
	for key, value := range c.lastRemaining {
		snapshot[key] = value
	}
	return snapshot
}
