package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatproof/internal/chat"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// ErrUnauthorized is returned when the Bot API rejects the token.
var ErrUnauthorized = errors.New("telegram: unauthorized")

// APIError is a Bot API call that returned ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

func (e *APIError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
	HTTPClient  *http.Client
}

// Client is a minimal long-polling Bot API client.
//
// Poll is not safe for concurrent use; SendNotice may be called from any
// goroutine.
type Client struct {
	token       string
	apiURL      string
	pollTimeout time.Duration
	http        *http.Client
	offset      int64
}

// NewClient creates a client. The HTTP timeout is set above the long-poll
// timeout so a quiet chat is not reported as a failure.
func NewClient(cfg ClientConfig) *Client {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.PollTimeout + 10*time.Second}
	}
	return &Client{
		token:       cfg.Token,
		apiURL:      apiURL,
		pollTimeout: cfg.PollTimeout,
		http:        hc,
	}
}

// call posts params as JSON and decodes the result into out. Errors never
// contain the request URL, which embeds the token.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram %s: encode params: %w", method, err)
	}

	endpoint := c.apiURL + "/bot" + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s: build request failed", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: read response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("telegram %s: decode response (status %d): %w", method, resp.StatusCode, err)
	}
	if !envelope.OK {
		code := envelope.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: envelope.Description}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

// GetMe returns the bot's own user. It is used to validate the token.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Poll long-polls for new updates and returns each one as its raw JSON
// payload, in delivery order. The offset advances past every returned
// update, so a payload is handed out once.
func (c *Client) Poll(ctx context.Context) ([][]byte, error) {
	params := getUpdatesParams{
		Offset:  c.offset,
		Timeout: int(c.pollTimeout / time.Second),
	}

	var raw []json.RawMessage
	if err := c.call(ctx, "getUpdates", params, &raw); err != nil {
		return nil, err
	}

	payloads := make([][]byte, 0, len(raw))
	for _, r := range raw {
		var head struct {
			UpdateID int64 `json:"update_id"`
		}
		if err := json.Unmarshal(r, &head); err == nil && head.UpdateID >= c.offset {
			c.offset = head.UpdateID + 1
		}
		payloads = append(payloads, []byte(r))
	}
	return payloads, nil
}

// SendNotice sends a text message. FormatHTML selects the HTML parse mode
// so hyperlinks render.
func (c *Client) SendNotice(ctx context.Context, chatID int64, text string, format chat.Format) error {
	params := sendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if format == chat.FormatHTML {
		params.ParseMode = "HTML"
	}
	return c.call(ctx, "sendMessage", params, nil)
}
