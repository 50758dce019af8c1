// Package client is a typed HTTP client for the sugartrack API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient abstracts the Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is returned for any non-success envelope.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sugartrack api: %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// IsUnauthorized reports whether err is a rejected bearer token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is one of the API's "not found" answers.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusForbidden, http.StatusNotFound:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(apiErr.Message), "not found")
	}
	return false
}

// User mirrors the account returned by /readUser and /login.
type User struct {
	ID         int64   `json:"user_id"`
	Name       string  `json:"user_name"`
	Email      string  `json:"user_email"`
	Age        int     `json:"user_age"`
	Height     float64 `json:"user_height"`
	Weight     float64 `json:"user_weight"`
	SugarLimit float64 `json:"sugar_limit"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"userData"`
}

// ProfileUpdate carries the profile fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name   *string  `json:"name,omitempty"`
	Age    *int     `json:"age,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
	Limit  *float64 `json:"limit,omitempty"`
}

// Consumption is the user's running total after a POST /consume.
type Consumption struct {
	UserID        int64   `json:"user_id"`
	ConsumedSugar float64 `json:"consume_sugar"`
	RecordDate    string  `json:"consume_date"`
	// Created is true when this was the user's first record.
	Created bool `json:"-"`
}

// DailyStatus is the answer of GET /consume.
type DailyStatus struct {
	UserName      string  `json:"user_name"`
	SugarLimit    float64 `json:"sugar_limit"`
	ConsumedSugar float64 `json:"consume_sugar"`
	RecordDate    string  `json:"consume_date"`
	Remaining     float64 `json:"remaining"`
	Exceeded      bool    `json:"exceeded"`
}

// HistoryEntry is one scan with its product.
type HistoryEntry struct {
	ScanID      int64     `json:"scan_id"`
	Barcode     string    `json:"product_barcode"`
	ProductName string    `json:"product_name"`
	SugarGrams  float64   `json:"sugar_grams"`
	GradeID     string    `json:"grade_id"`
	ScannedAt   time.Time `json:"scanned_at"`
}

// Product is a catalog entry with its healthier alternatives.
type Product struct {
	Barcode         string   `json:"product_barcode"`
	Name            string   `json:"product_name"`
	SugarGrams      float64  `json:"sugar_grams"`
	GradeID         string   `json:"grade_id"`
	Recommendations []string `json:"recommendations"`
}

// Grade is a sugar band.
type Grade struct {
	ID            string  `json:"grade_id"`
	Label         string  `json:"label"`
	Description   string  `json:"description"`
	MaxSugarGrams float64 `json:"max_sugar_grams"`
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to a sugartrack server. It is safe for concurrent use once
// configured.
type Client struct {
	baseURL    *url.URL
	httpClient HTTPClient
	token      string
	logger     zerolog.Logger
}

// New constructs a client using the provided base URL.
func New(baseURL string, httpClient HTTPClient) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, logger: zerolog.Nop()}, nil
}

// SetLogger enables request debug logging.
func (c *Client) SetLogger(logger zerolog.Logger) { c.logger = logger }

// SetToken sets the bearer token sent with authenticated calls.
func (c *Client) SetToken(token string) { c.token = strings.TrimSpace(token) }

// Token returns the current bearer token.
func (c *Client) Token() string { return c.token }

// Register creates an account.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	_, err := c.do(ctx, http.MethodPost, "/register", map[string]string{
		"name":  name,
		"email": email,
		"pass":  password,
	}, nil)
	return err
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var session Session
	if _, err := c.do(ctx, http.MethodPost, "/login", map[string]string{"email": email, "pass": password}, &session); err != nil {
		return Session{}, err
	}
	c.SetToken(session.Token)
	return session, nil
}

// Profile returns the authenticated user.
func (c *Client) Profile(ctx context.Context) (User, error) {
	var user User
	_, err := c.do(ctx, http.MethodGet, "/readUser", nil, &user)
	return user, err
}

// UpdateProfile changes the supplied profile fields.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (User, error) {
	var user User
	_, err := c.do(ctx, http.MethodPut, "/updateUser", update, &user)
	return user, err
}

// Consume adds grams of sugar to today's total, or to date when it is set
// (YYYY-MM-DD).
func (c *Client) Consume(ctx context.Context, grams float64, date string) (Consumption, error) {
	payload := map[string]any{"consumeSugar": grams}
	if date != "" {
		payload["date"] = date
	}
	var rec Consumption
	env, err := c.do(ctx, http.MethodPost, "/consume", payload, &rec)
	if err != nil {
		return Consumption{}, err
	}
	rec.Created = env.Message == "insert successful"
	return rec, nil
}

// DailyStatus returns today's total against the user's limit.
func (c *Client) DailyStatus(ctx context.Context) (DailyStatus, error) {
	var status DailyStatus
	_, err := c.do(ctx, http.MethodGet, "/consume", nil, &status)
	return status, err
}

// History lists the user's scans; an empty history is not an error.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	_, err := c.do(ctx, http.MethodGet, "/history", nil, &entries)
	return entries, err
}

// HistoryEntry returns one scan.
func (c *Client) HistoryEntry(ctx context.Context, scanID int64) (HistoryEntry, error) {
	var entry HistoryEntry
	_, err := c.do(ctx, http.MethodGet, "/history/"+strconv.FormatInt(scanID, 10), nil, &entry)
	return entry, err
}

// Scan records a scan of barcode.
func (c *Client) Scan(ctx context.Context, barcode string) (HistoryEntry, error) {
	var result struct {
		Scan HistoryEntry `json:"scan"`
	}
	_, err := c.do(ctx, http.MethodPost, "/scanProduct", map[string]string{"barcode": barcode}, &result)
	return result.Scan, err
}

// Product looks up a barcode.
func (c *Client) Product(ctx context.Context, barcode string) (Product, error) {
	var product Product
	_, err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(barcode), nil, &product)
	return product, err
}

// Grade looks up a grade by id.
func (c *Client) Grade(ctx context.Context, id string) (Grade, error) {
	var grade Grade
	_, err := c.do(ctx, http.MethodGet, "/grade/"+url.PathEscape(id), nil, &grade)
	return grade, err
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) (envelope, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return envelope{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	endpoint := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("api call")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return envelope{}, fmt.Errorf("read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, &APIError{StatusCode: resp.StatusCode, Status: "invalid", Message: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		return env, &APIError{StatusCode: resp.StatusCode, Status: env.Status, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env, fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return env, nil
}
