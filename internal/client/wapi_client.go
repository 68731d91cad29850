package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.w-api.app/v1/message/send-text"
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 250
)

// Config holds the provider settings. URL, when set, replaces BaseURL and
// Instance entirely.
type Config struct {
	URL      string
	BaseURL  string
	Instance string
	Token    string
	Timeout  time.Duration

	// RatePerSecond caps sends across every caller of this client; zero
	// disables the limiter.
	RatePerSecond float64
	RateBurst     int
}

// SendResult is the outcome of one send attempt. MessageID is best-effort
// and may be empty on success.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

type WAPIClient struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewWAPIClient(cfg Config) *WAPIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &WAPIClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return c
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Endpoint returns the resolved send URL.
func (c *WAPIClient) Endpoint() string {
	if u := strings.TrimSpace(c.cfg.URL); u != "" {
		return u
	}
	return c.cfg.BaseURL + "?instanceId=" + strings.TrimSpace(c.cfg.Instance)
}

// SendText posts one text message. It never returns an error: every outcome,
// including missing configuration, is reported in the result.
func (c *WAPIClient) SendText(ctx context.Context, phoneNumber, message string) SendResult {
	url := c.Endpoint()
	if !strings.Contains(url, "instanceId=") || strings.HasSuffix(url, "instanceId=") {
		return failure("WAPI_URL/WAPI_INSTANCE not configured")
	}
	token := strings.TrimSpace(c.cfg.Token)
	if token == "" {
		return failure("WAPI_TOKEN not configured")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return failure(fmt.Sprintf("rate limiter: %v", err))
		}
	}

	reqBody, err := json.Marshal(sendRequest{
		Phone:   phoneNumber,
		Message: message,
	})
	if err != nil {
		return failure(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return failure(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return failure(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failure(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(body), maxErrorBody)))
	}

	return SendResult{Success: true, MessageID: extractMessageID(body)}
}

// extractMessageID reads the provider id from messageId, id, or message.id.
func extractMessageID(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if id := scalar(parsed["messageId"]); id != "" {
		return id
	}
	if id := scalar(parsed["id"]); id != "" {
		return id
	}
	if nested, ok := parsed["message"].(map[string]any); ok {
		return scalar(nested["id"])
	}
	return ""
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

func failure(msg string) SendResult {
	return SendResult{Success: false, Error: msg}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
