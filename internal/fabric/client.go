package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"fabrik/internal/logging"
)

const (
	// DefaultFabricBaseURL is the Fabric REST API root.
	DefaultFabricBaseURL = "https://api.fabric.microsoft.com/v1"
	// DefaultPowerBIBaseURL is the Power BI REST API root, used for
	// dataset queries the Fabric surface does not expose.
	DefaultPowerBIBaseURL = "https://api.powerbi.com/v1.0/myorg"

	defaultRequestsPerSecond = 8
	defaultMaxRetries        = 3
	defaultRetryWait         = 5 * time.Second
	maxRetryWait             = 2 * time.Minute
)

// Config sets up a Client. Zero values fall back to the service
// defaults above.
type Config struct {
	Auth              AuthConfig
	FabricBaseURL     string
	PowerBIBaseURL    string
	RequestsPerSecond float64
	MaxRetries        int
	HTTPClient        *http.Client
	Logger            *logging.Logger
}

// Client talks to the Fabric and Power BI REST APIs with rate limiting,
// throttle-aware retries, and continuation-token pagination.
type Client struct {
	http        *http.Client
	fabricBase  string
	powerBIBase string
	tokens      *TokenSource
	limiter     *rate.Limiter
	maxRetries  int
	logger      *logging.Logger
}

// NewClient validates the auth configuration and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	tokens, err := NewTokenSource(cfg.Auth)
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	perSecond := cfg.RequestsPerSecond
	if perSecond <= 0 {
		perSecond = defaultRequestsPerSecond
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	return &Client{
		http:        httpClient,
		fabricBase:  strings.TrimRight(defaultString(cfg.FabricBaseURL, DefaultFabricBaseURL), "/"),
		powerBIBase: strings.TrimRight(defaultString(cfg.PowerBIBaseURL, DefaultPowerBIBaseURL), "/"),
		tokens:      tokens,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
		maxRetries:  retries,
		logger:      cfg.Logger,
	}, nil
}

// Tokens exposes the token cache for the auth status tools.
func (c *Client) Tokens() *TokenSource {
	return c.tokens
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (c *Client) fabricURL(path string) string {
	return c.fabricBase + path
}

func (c *Client) powerBIURL(path string) string {
	return c.powerBIBase + path
}

// do issues one request with the standing rate limit and retries
// throttled or briefly unavailable calls, honoring Retry-After.
func (c *Client) do(ctx context.Context, method, rawURL string, body any, out any) error {
	response, err := c.request(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	return decodeResponse(response, out)
}

// request runs the retry loop and hands back the final response. The
// caller owns the body.
func (c *Client) request(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		request, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		request.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			request.Header.Set("Content-Type", "application/json")
		}

		response, err := c.http.Do(request)
		if err != nil {
			return nil, fmt.Errorf("request %s %s: %w", method, rawURL, err)
		}

		if retryable(response.StatusCode) && attempt < c.maxRetries {
			wait := retryAfter(response)
			io.Copy(io.Discard, response.Body)
			response.Body.Close()
			if c.logger != nil {
				c.logger.Warn("fabric throttled", map[string]string{
					"status":  strconv.Itoa(response.StatusCode),
					"wait":    wait.String(),
					"attempt": strconv.Itoa(attempt + 1),
				})
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		return response, nil
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func retryAfter(response *http.Response) time.Duration {
	header := response.Header.Get("Retry-After")
	if header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			wait := time.Duration(seconds) * time.Second
			if wait > maxRetryWait {
				return maxRetryWait
			}
			return wait
		}
	}
	return defaultRetryWait
}

func decodeResponse(response *http.Response, out any) error {
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return apiError(response)
	}
	if out == nil {
		io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError extracts the service error envelope. Fabric and Power BI both
// wrap failures as {"error": {"code", "message"}}.
func apiError(response *http.Response) error {
	apiErr := &APIError{
		StatusCode: response.StatusCode,
		Message:    response.Status,
		RequestID:  response.Header.Get("RequestId"),
	}
	if apiErr.RequestID == "" {
		apiErr.RequestID = response.Header.Get("x-ms-request-id")
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		if envelope.Error.Message != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		} else if envelope.Message != "" {
			apiErr.Message = envelope.Message
		}
	} else if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
		apiErr.Message = trimmed
	}
	return apiErr
}

// listPages follows continuation tokens until the listing is exhausted
// and returns the concatenated value arrays.
func listPages[T any](ctx context.Context, c *Client, rawURL string) ([]T, error) {
	var all []T
	next := rawURL
	for next != "" {
		var page struct {
			Value             []T    `json:"value"`
			ContinuationToken string `json:"continuationToken"`
			ContinuationURI   string `json:"continuationUri"`
		}
		if err := c.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Value...)

		switch {
		case page.ContinuationURI != "":
			next = page.ContinuationURI
		case page.ContinuationToken != "":
			next = withQuery(rawURL, "continuationToken", page.ContinuationToken)
		default:
			next = ""
		}
	}
	return all, nil
}

func withQuery(rawURL, key, value string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	query.Set(key, value)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
