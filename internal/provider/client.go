package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lumachat/chatvault/internal/db/models"
	"github.com/lumachat/chatvault/internal/normalize"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// HTTPError carries a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.StatusCode, e.Message)
}

// Config configures the HTTP provider client. When TokenURL is set,
// tokens are fetched via the OAuth2 client-credentials flow; otherwise
// APIKey is used as a static bearer token.
type Config struct {
	BaseURL           string
	APIKey            string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	RequestsPerSecond float64
	MaxRetries        int
}

// HTTPClient is the production Client implementation: bearer-token auth,
// client-side rate limiting and bounded retry on 429/5xx.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// NewHTTPClient builds a provider client from config, applying defaults
// for anything unset.
func NewHTTPClient(cfg Config) *HTTPClient {
	var tokens oauth2.TokenSource
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		tokens = cc.TokenSource(context.Background())
	} else {
		tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey})
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		maxRetries: maxRetries,
		baseDelay:  200 * time.Millisecond,
	}
}

func (c *HTTPClient) ListChats(ctx context.Context, account *models.Account, cursor string, limit int) (ChatPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out ChatPage
	err := c.doJSON(ctx, fmt.Sprintf("/v1/accounts/%s/chats", url.PathEscape(account.ExternalID)), q, &out)
	return out, err
}

func (c *HTTPClient) ListMessages(ctx context.Context, account *models.Account, chatExternalID, cursor string, limit int) (MessagePage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out MessagePage
	err := c.doJSON(ctx,
		fmt.Sprintf("/v1/accounts/%s/chats/%s/messages",
			url.PathEscape(account.ExternalID), url.PathEscape(chatExternalID)),
		q, &out)
	return out, err
}

func (c *HTTPClient) ListAttendees(ctx context.Context, account *models.Account, chatExternalID string, limit int) ([]normalize.RawAttendee, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out AttendeePage
	err := c.doJSON(ctx,
		fmt.Sprintf("/v1/accounts/%s/chats/%s/attendees",
			url.PathEscape(account.ExternalID), url.PathEscape(chatExternalID)),
		q, &out)
	return out.Items, err
}

func (c *HTTPClient) GetAttachmentContent(ctx context.Context, account *models.Account, messageExternalID, attachmentExternalID string) (AttachmentContent, error) {
	var out AttachmentContent
	err := c.doJSON(ctx,
		fmt.Sprintf("/v1/accounts/%s/messages/%s/attachments/%s/content",
			url.PathEscape(account.ExternalID),
			url.PathEscape(messageExternalID),
			url.PathEscape(attachmentExternalID)),
		nil, &out)
	var httpErr *HTTPError
	if err != nil {
		// The provider signals permanently-gone content with 404/410.
		if errors.As(err, &httpErr) &&
			(httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusGone) {
			return out, ErrContentGone
		}
		return out, err
	}
	return out, nil
}

func (c *HTTPClient) GetProfile(ctx context.Context, account *models.Account, identifier string) (normalize.RawAttendee, error) {
	var out normalize.RawAttendee
	err := c.doJSON(ctx,
		fmt.Sprintf("/v1/accounts/%s/profiles/%s",
			url.PathEscape(account.ExternalID), url.PathEscape(identifier)),
		nil, &out)
	return out, err
}

// doJSON issues one GET with auth and rate limiting, retrying transient
// outcomes (transport error, 429, 5xx) with doubling backoff.
func (c *HTTPClient) doJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("provider token: %w", err)
		}
		token.SetAuthHeader(req)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepCtx(ctx, c.backoff(attempt)); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(body) == 0 {
				return nil
			}
			return json.Unmarshal(body, out)
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if retryable && attempt < c.maxRetries {
			if waitErr := sleepCtx(ctx, c.backoff(attempt)); waitErr != nil {
				return waitErr
			}
			continue
		}

		return &HTTPError{StatusCode: resp.StatusCode, Message: string(body)}
	}
}

func (c *HTTPClient) backoff(attempt int) time.Duration {
	d := c.baseDelay << uint(attempt)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
