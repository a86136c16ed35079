// Package transport implements the single backend exchange: one JSON POST to
// /api/PostWormAPI per user message.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wormchat/internal/logging"
)

const (
	// PostPath is the backend endpoint, relative to the base URL.
	PostPath = "/api/PostWormAPI"
	// HeaderFunctionsKey carries the API key when one is configured.
	HeaderFunctionsKey = "x-functions-key"
)

// Request is the wire request body. ID is omitted on the first exchange.
type Request struct {
	ID          string `json:"id,omitempty"`
	MailAddress string `json:"mailAddress"`
	ChatText    string `json:"chatText"`
}

// Response is the wire response body.
type Response struct {
	ID         string `json:"id"`
	OutputText string `json:"outputText"`
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // 0 means no client-side timeout
}

// Client sends chat exchanges to the backend.
type Client struct {
	http   *resty.Client
	apiKey string
}

// NewClient creates a resty-backed client.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	hc := resty.New().
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		hc.SetTimeout(cfg.Timeout)
	}
	return &Client{http: hc, apiKey: cfg.APIKey}
}

// Send performs one exchange. Errors are always *ValidationError,
// *UpstreamServiceError or *UnexpectedError.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	reqID := uuid.NewString()
	start := time.Now()

	logging.APIDebug("sending exchange",
		zap.String("req", reqID),
		zap.Bool("has_conversation", req.ID != ""),
		zap.Int("chars", len(req.ChatText)))

	r := c.http.R().
		SetContext(ctx).
		SetBody(req)
	if c.apiKey != "" {
		r.SetHeader(HeaderFunctionsKey, c.apiKey)
	}

	resp, err := r.Post(PostPath)
	elapsed := time.Since(start)
	if err != nil {
		logging.Get(logging.CategoryAPI).Warn("exchange failed",
			zap.String("req", reqID), zap.Duration("elapsed", elapsed), zap.Error(err))
		terr := &UnexpectedError{Err: err}
		logging.AuditExchangeDone(reqID, req.ID, 0, elapsed, terr)
		return nil, terr
	}

	status := resp.StatusCode()
	out, err := decodeResponse(status, resp.Body())
	if err != nil {
		logging.Get(logging.CategoryAPI).Warn("exchange rejected",
			zap.String("req", reqID),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("detail", errorDetail(err)))
		logging.AuditExchangeDone(reqID, req.ID, status, elapsed, err)
		return nil, err
	}

	logging.API("exchange complete",
		zap.String("req", reqID),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
		zap.String("conversation", out.ID))
	logging.AuditExchangeDone(reqID, out.ID, status, elapsed, nil)
	return out, nil
}

// decodeResponse maps a status and body to a Response or a typed error.
func decodeResponse(status int, body []byte) (*Response, error) {
	switch {
	case status >= 200 && status < 300:
		var out Response
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, &UnexpectedError{StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
		}
		return &out, nil

	case status == http.StatusBadRequest:
		return nil, &ValidationError{Details: validationDetails(body)}

	case status == http.StatusBadGateway:
		return nil, &UpstreamServiceError{StatusCode: status}

	default:
		return nil, &UnexpectedError{StatusCode: status}
	}
}

// validationDetails renders every element of a JSON array body as text.
// Anything other than an array yields no details.
func validationDetails(body []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil
	}

	details := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			details = append(details, "")
		case string:
			details = append(details, v)
		default:
			details = append(details, fmt.Sprint(v))
		}
	}
	return details
}

func errorDetail(err error) string {
	var ue *UnexpectedError
	if errors.As(err, &ue) {
		return ue.Detail()
	}
	return err.Error()
}
