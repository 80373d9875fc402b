// Package fyersconnect is a REST client for the Fyers API v3: OAuth
// auth-code/token handling, market data (quotes, depth, candle history)
// and order endpoints.
//
// Usage example:
//
//	fc := fyersconnect.New(fyersconnect.Config{AppID: "XXXX-100", SecretID: "..."})
//	fmt.Println("Visit:", fc.AuthCodeURL("state123"))
//	// after redirect:
//	if err := fc.GenerateSession(authCode); err != nil { log.Fatal(err) }
//	candles, err := fc.History(ctx, "NSE:SBIN-EQ", "5", from, to)
package fyersconnect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

const (
	defaultAPIRoot  = "https://api-t1.fyers.in"
	defaultAuthRoot = "https://api-t1.fyers.in/api/v3"
	defaultTimeout  = 10 * time.Second
)

var routes = map[string]string{
	"auth.authcode": "/api/v3/generate-authcode",
	"auth.token":    "/api/v3/validate-authcode",
	"auth.refresh":  "/api/v3/validate-refresh-token",
	"auth.sendotp":  "/api/v3/send_login_otp",
	"auth.totp":     "/api/v3/verify_otp",
	"auth.pin":      "/api/v3/verify_pin",

	"user.profile": "/api/v3/profile",
	"user.funds":   "/api/v3/funds",
	"user.holding": "/api/v3/holdings",

	"order.place":  "/api/v3/orders/sync",
	"order.modify": "/api/v3/orders/sync",
	"order.cancel": "/api/v3/orders/sync",
	"order.book":   "/api/v3/orders",
	"positions":    "/api/v3/positions",
	"tradebook":    "/api/v3/tradebook",

	"data.quotes":  "/data/quotes",
	"data.depth":   "/data/depth",
	"data.history": "/data/history",
}

// Config configures the client. AppID and SecretID come from the Fyers
// developer dashboard; RedirectURI must match the app registration.
type Config struct {
	AppID       string
	SecretID    string
	RedirectURI string

	AccessToken  string // restore a persisted session
	RefreshToken string

	APIRoot string
	Timeout time.Duration
}

// Client is a Fyers REST client. It is not safe for concurrent token
// mutation; callers refresh sessions from a single goroutine.
type Client struct {
	appID       string
	secretID    string
	redirectURI string

	accessToken  string
	refreshToken string

	apiRoot    string
	httpClient *http.Client

	// SessionExpiryHook fires when the API reports an expired token (-16/-17).
	SessionExpiryHook func()
}

// APIError is a non-ok response from the Fyers API.
type APIError struct {
	Code    int    `json:"code"`
	Status  string `json:"s"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fyers api error %d: %s", e.Code, e.Message)
}

// New creates a Client from the given config.
func New(cfg Config) *Client {
	if cfg.APIRoot == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		appID:        cfg.AppID,
		secretID:     cfg.SecretID,
		redirectURI:  cfg.RedirectURI,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
		apiRoot:      strings.TrimRight(cfg.APIRoot, "/"),
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

// ---- Session / OAuth ----

// AuthCodeURL builds the broker login URL the front-end redirects the user
// to. After login the broker calls back with an auth code.
func (c *Client) AuthCodeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.appID)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	return c.apiRoot + routes["auth.authcode"] + "?" + q.Encode()
}

// appIDHash is sha256("appID:secretID") — required by the token endpoints.
func (c *Client) appIDHash() string {
	sum := sha256.Sum256([]byte(c.appID + ":" + c.secretID))
	return hex.EncodeToString(sum[:])
}

// GenerateSession exchanges an auth code for access/refresh tokens and
// stores them on the client.
func (c *Client) GenerateSession(ctx context.Context, authCode string) error {
	res, err := c.post(ctx, "auth.token", map[string]any{
		"grant_type": "authorization_code",
		"appIdHash":  c.appIDHash(),
		"code":       authCode,
	})
	if err != nil {
		return err
	}
	at, _ := res["access_token"].(string)
	if at == "" {
		return fmt.Errorf("token exchange: no access_token in response")
	}
	c.accessToken = at
	if rt, _ := res["refresh_token"].(string); rt != "" {
		c.refreshToken = rt
	}
	return nil
}

// RefreshSession renews the access token using the stored refresh token and
// the user's trading pin.
func (c *Client) RefreshSession(ctx context.Context, pin string) error {
	if c.refreshToken == "" {
		return fmt.Errorf("refresh session: no refresh token")
	}
	res, err := c.post(ctx, "auth.refresh", map[string]any{
		"grant_type":    "refresh_token",
		"appIdHash":     c.appIDHash(),
		"refresh_token": c.refreshToken,
		"pin":           pin,
	})
	if err != nil {
		return err
	}
	at, _ := res["access_token"].(string)
	if at == "" {
		return fmt.Errorf("refresh session: no access_token in response")
	}
	c.accessToken = at
	return nil
}

// TOTPCode generates the current time-based OTP for the broker's 2FA step.
func TOTPCode(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}

// TOTPLogin performs the headless login flow (send OTP → verify TOTP →
// verify pin) and returns the request key of the authorized session. Used
// by the relay's pre-open auto-login so no human is needed at 9:10 AM.
func (c *Client) TOTPLogin(ctx context.Context, fyersID, totpSecret, pin string) (string, error) {
	res, err := c.post(ctx, "auth.sendotp", map[string]any{
		"fy_id":  fyersID,
		"app_id": "2", // constant for the login app, per API docs
	})
	if err != nil {
		return "", fmt.Errorf("send login otp: %w", err)
	}
	requestKey, _ := res["request_key"].(string)
	if requestKey == "" {
		return "", fmt.Errorf("send login otp: no request_key")
	}

	code, err := TOTPCode(totpSecret)
	if err != nil {
		return "", fmt.Errorf("totp generate: %w", err)
	}
	res, err = c.post(ctx, "auth.totp", map[string]any{
		"request_key": requestKey,
		"otp":         code,
	})
	if err != nil {
		return "", fmt.Errorf("verify totp: %w", err)
	}
	if rk, _ := res["request_key"].(string); rk != "" {
		requestKey = rk
	}

	res, err = c.post(ctx, "auth.pin", map[string]any{
		"request_key":   requestKey,
		"identity_type": "pin",
		"identifier":    pin,
	})
	if err != nil {
		return "", fmt.Errorf("verify pin: %w", err)
	}
	if data, ok := res["data"].(map[string]any); ok {
		if at, _ := data["access_token"].(string); at != "" {
			c.accessToken = at
		}
	}
	return requestKey, nil
}

// Tokens returns the current session tokens for persistence.
func (c *Client) Tokens() (access, refresh string) {
	return c.accessToken, c.refreshToken
}

// SetTokens restores session tokens from persisted state.
func (c *Client) SetTokens(access, refresh string) {
	c.accessToken = access
	c.refreshToken = refresh
}

// ---- Market data ----

// History fetches raw OHLCV candles: [[ts, open, high, low, close, volume], …]
// with epoch-second timestamps. This is the relay's HistoryProvider.
func (c *Client) History(ctx context.Context, symbol, resolution string, from, to int64) ([][]float64, error) {
	res, err := c.get(ctx, "data.history", url.Values{
		"symbol":      {symbol},
		"resolution":  {resolution},
		"date_format": {"0"}, // epoch seconds
		"range_from":  {strconv.FormatInt(from, 10)},
		"range_to":    {strconv.FormatInt(to, 10)},
		"cont_flag":   {"1"},
	})
	if err != nil {
		return nil, err
	}

	rawCandles, ok := res["candles"].([]any)
	if !ok {
		return nil, fmt.Errorf("history %s: unexpected response shape", symbol)
	}
	candles := make([][]float64, 0, len(rawCandles))
	for _, rc := range rawCandles {
		row, ok := rc.([]any)
		if !ok {
			continue
		}
		tuple := make([]float64, 0, len(row))
		for _, v := range row {
			f, ok := v.(float64)
			if !ok {
				break
			}
			tuple = append(tuple, f)
		}
		candles = append(candles, tuple)
	}
	return candles, nil
}

// FetchHistory adapts History to the HMA engine's collaborator signature.
func (c *Client) FetchHistory(ctx context.Context, symbol, resolution string, from, to int64) ([][]float64, error) {
	return c.History(ctx, symbol, resolution, from, to)
}

// Quotes returns last-traded snapshots for up to 50 comma-separated symbols.
func (c *Client) Quotes(ctx context.Context, symbols string) (map[string]any, error) {
	return c.get(ctx, "data.quotes", url.Values{"symbols": {symbols}})
}

// Depth returns the 5-level order book for one symbol.
func (c *Client) Depth(ctx context.Context, symbol string) (map[string]any, error) {
	return c.get(ctx, "data.depth", url.Values{"symbol": {symbol}, "ohlcv_flag": {"1"}})
}

// ---- Orders / portfolio ----

// PlaceOrder forwards an order payload and returns the broker order id.
func (c *Client) PlaceOrder(ctx context.Context, params map[string]any) (string, error) {
	res, err := c.post(ctx, "order.place", params)
	if err != nil {
		return "", err
	}
	if id, _ := res["id"].(string); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("place order: no order id in response")
}

// ModifyOrder patches an existing order.
func (c *Client) ModifyOrder(ctx context.Context, params map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPatch, "order.modify", params, nil)
}

// CancelOrder cancels by order id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (map[string]any, error) {
	return c.do(ctx, http.MethodDelete, "order.cancel", map[string]any{"id": orderID}, nil)
}

func (c *Client) Orders(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "order.book", nil)
}
func (c *Client) Positions(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "positions", nil)
}
func (c *Client) Holdings(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "user.holding", nil)
}
func (c *Client) Funds(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "user.funds", nil)
}
func (c *Client) Profile(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "user.profile", nil)
}

// ---- Transport ----

func (c *Client) get(ctx context.Context, route string, q url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, route, nil, q)
}

func (c *Client) post(ctx context.Context, route string, params map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, route, params, nil)
}

func (c *Client) do(ctx context.Context, method, route string, params map[string]any, q url.Values) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	reqURL := c.apiRoot + uri
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		// Fyers wants "appID:accessToken", not a plain bearer token.
		req.Header.Set("Authorization", c.appID+":"+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse response (%d): %w", resp.StatusCode, err)
	}

	if s, _ := out["s"].(string); s != "" && s != "ok" {
		apiErr := &APIError{Status: s}
		if code, ok := out["code"].(float64); ok {
			apiErr.Code = int(code)
		}
		apiErr.Message, _ = out["message"].(string)
		if c.SessionExpiryHook != nil && (apiErr.Code == -16 || apiErr.Code == -17) {
			c.SessionExpiryHook()
		}
		return out, apiErr
	}
	return out, nil
}
