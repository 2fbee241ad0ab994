package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// DiscordConfig contains configuration for the Discord REST client.
type DiscordConfig struct {
	// BotToken authenticates every request.
	BotToken string

	// BaseURL is the API root. Empty selects the production endpoint;
	// tests point it at a local server.
	BaseURL string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
}

const defaultBaseURL = "https://discord.com/api/v10"

// Discord message limits.
const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	truncationSuffix     = "..."

	// Discord blue (#5865F2)
	discordBlueColor = 5793266
)

// DiscordClient sends direct messages through the Discord REST API.
//
// An inner token bucket smooths request bursts under the global REST
// budget; the pipeline's category limiter owns the coarse per-minute
// budget on top of it.
type DiscordClient struct {
	config     DiscordConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewDiscordClient creates a DiscordClient with the given configuration.
func NewDiscordClient(config DiscordConfig) *DiscordClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &DiscordClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(2, 4), // 2 req/s sustained, burst of 4
	}
}

type dmChannelRequest struct {
	RecipientID string `json:"recipient_id"`
}

type dmChannelResponse struct {
	ID string `json:"id"`
}

type messagePayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	URL         string      `json:"url,omitempty"`
	Color       int         `json:"color"`
	Image       *embedImage `json:"image,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type apiErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // seconds
}

// ResolveRecipient opens (or reuses) the recipient's DM channel and returns
// its ID as the delivery handle. A recipient Discord no longer knows yields
// ErrRecipientNotFound, distinct from transport failures.
func (d *DiscordClient) ResolveRecipient(ctx context.Context, recipientID string) (string, error) {
	body, err := json.Marshal(dmChannelRequest{RecipientID: recipientID})
	if err != nil {
		return "", fmt.Errorf("marshal dm channel request: %w", err)
	}

	respBody, err := d.do(ctx, http.MethodPost, d.config.BaseURL+"/users/@me/channels", body)
	if err != nil {
		var clientErr *ClientError
		if errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("resolve recipient %s: %w", recipientID, ErrRecipientNotFound)
		}
		return "", err
	}

	var channel dmChannelResponse
	if err := json.Unmarshal(respBody, &channel); err != nil {
		return "", fmt.Errorf("unmarshal dm channel response: %w", err)
	}
	if channel.ID == "" {
		return "", fmt.Errorf("resolve recipient %s: empty channel id", recipientID)
	}
	return channel.ID, nil
}

// Send delivers one item as an embed message to the resolved handle.
// Title and body are truncated to Discord's embed limits; imageURL is
// optional.
func (d *DiscordClient) Send(ctx context.Context, handle, title, body, imageURL string) error {
	e := embed{
		Title:       truncate(title, maxTitleLength, truncationSuffix),
		Description: truncate(body, maxDescriptionLength, truncationSuffix),
		Color:       discordBlueColor,
	}
	if imageURL != "" {
		e.Image = &embedImage{URL: imageURL}
	}

	payload, err := json.Marshal(messagePayload{Embeds: []embed{e}})
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", d.config.BaseURL, handle)
	if _, err := d.do(ctx, http.MethodPost, url, payload); err != nil {
		return err
	}
	return nil
}

// do executes one authenticated request and maps the response status to the
// channel error taxonomy.
func (d *DiscordClient) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("inner rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+d.config.BotToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			Message:    "Discord rate limit exceeded",
			RetryAfter: extractRetryAfter(resp, respBody),
		}
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Discord API client error %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	if resp.StatusCode >= 500 {
		return nil, &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("Discord API server error %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
}

// extractRetryAfter reads the retry delay from the JSON body, falling back
// to the Retry-After header, then a 5 second default.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter * float64(time.Second))
	}

	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return 5 * time.Second
}
