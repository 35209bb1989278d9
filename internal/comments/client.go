// Package comments fetches top-level comments from the TikTok web API.
package comments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/vidledger/internal/domain"
	"github.com/timmy/vidledger/internal/textutil"
)

// probeVideoID is a well-formed id used only to exercise authentication.
const probeVideoID = "7000000000000000000"

var videoIDPattern = regexp.MustCompile(`/video/(\d+)`)

// Config holds client settings.
type Config struct {
	BaseURL   string
	UserAgent string
	PageSize  int
	Timeout   time.Duration
}

// Client is a resty-backed comment list client authenticated by msToken.
type Client struct {
	client   *resty.Client
	pageSize int
}

type listResponse struct {
	StatusCode int          `json:"status_code"`
	StatusMsg  string       `json:"status_msg"`
	Comments   []apiComment `json:"comments"`
	Cursor     int64        `json:"cursor"`
	HasMore    int          `json:"has_more"`
}

type apiComment struct {
	CID        string `json:"cid"`
	Text       string `json:"text"`
	DiggCount  int64  `json:"digg_count"`
	CreateTime int64  `json:"create_time"`
	ReplyTotal int64  `json:"reply_comment_total"`
	User       struct {
		UniqueID string `json:"unique_id"`
		Nickname string `json:"nickname"`
	} `json:"user"`
}

// New creates a comment client.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.tiktok.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 20
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("Referer", baseURL+"/")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Client{client: client, pageSize: pageSize}
}

// VideoID extracts the numeric video id from a TikTok URL.
func VideoID(url string) string {
	if m := videoIDPattern.FindStringSubmatch(url); len(m) == 2 {
		return m[1]
	}
	return ""
}

// Fetch returns up to max comments in the order the endpoint lists them.
// An authorization failure is returned as *domain.EnrichmentAuthError.
func (c *Client) Fetch(ctx context.Context, videoID, token string, max int) ([]domain.CommentRecord, error) {
	if max <= 0 {
		return nil, nil
	}
	if videoID == "" {
		return nil, errors.New("comment fetch: empty video id")
	}

	out := make([]domain.CommentRecord, 0, max)
	var cursor int64
	for len(out) < max {
		count := c.pageSize
		if remaining := max - len(out); remaining < count {
			count = remaining
		}
		page, err := c.list(ctx, videoID, token, cursor, count)
		if err != nil {
			return out, err
		}
		for _, cm := range page.Comments {
			if len(out) >= max {
				break
			}
			out = append(out, toRecord(cm))
		}
		if page.HasMore == 0 || len(page.Comments) == 0 || page.Cursor <= cursor {
			break
		}
		cursor = page.Cursor
	}
	return out, nil
}

// Probe checks that token is accepted using a minimal request.
func (c *Client) Probe(ctx context.Context, token string) error {
	_, err := c.list(ctx, probeVideoID, token, 0, 1)
	if err == nil || domain.IsAuth(err) {
		return err
	}
	var se *statusError
	if errors.As(err, &se) {
		// The probe id need not exist; a non-auth API status still proves the token works.
		return nil
	}
	return err
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("comment API status %d: %s", e.code, e.msg)
}

func (c *Client) list(ctx context.Context, videoID, token string, cursor int64, count int) (*listResponse, error) {
	var resp listResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetCookie(&http.Cookie{Name: "msToken", Value: token}).
		SetQueryParams(map[string]string{
			"aweme_id": videoID,
			"cursor":   strconv.FormatInt(cursor, 10),
			"count":    strconv.Itoa(count),
			"aid":      "1988",
			"msToken":  token,
		}).
		Get("/api/comment/list/")
	if err != nil {
		return nil, fmt.Errorf("failed to call comment API: %w", err)
	}

	status := httpResp.StatusCode()
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, &domain.EnrichmentAuthError{StatusCode: status, Err: fmt.Errorf("HTTP %d: %s", status, truncate(httpResp.Body()))}
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("comment API returned HTTP %d: %s", status, truncate(httpResp.Body()))
	}
	// The endpoint answers a rejected token with an empty 200.
	body := httpResp.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &domain.EnrichmentAuthError{StatusCode: status, Err: errors.New("empty response, token rejected")}
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode comment list: %w", err)
	}
	if resp.StatusCode != 0 {
		if isAuthMessage(resp.StatusMsg) {
			return nil, &domain.EnrichmentAuthError{Err: &statusError{code: resp.StatusCode, msg: resp.StatusMsg}}
		}
		return nil, &statusError{code: resp.StatusCode, msg: resp.StatusMsg}
	}
	return &resp, nil
}

func isAuthMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"token", "auth", "login", "forbidden", "unauthorized"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func toRecord(cm apiComment) domain.CommentRecord {
	return domain.CommentRecord{
		ID:          cm.CID,
		Username:    cm.User.UniqueID,
		DisplayName: cm.User.Nickname,
		Text:        cm.Text,
		LikeCount:   cm.DiggCount,
		Timestamp:   cm.CreateTime,
		ReplyCount:  cm.ReplyTotal,
	}
}

func truncate(body []byte) string {
	const max = 256
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return textutil.Truncate(s, max) + "..."
	}
	return s
}
