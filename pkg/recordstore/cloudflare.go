package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the Cloudflare v4 API root.
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"

	defaultTimeout = 15 * time.Second
	listPageSize   = 100
)

// CloudflareOptions configures NewCloudflare.
type CloudflareOptions struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Cloudflare is a Client backed by the Cloudflare DNS API.
type Cloudflare struct {
	client *resty.Client
}

// NewCloudflare creates a Cloudflare API client authenticated with an API
// token.
func NewCloudflare(opts CloudflareOptions) *Cloudflare {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetAuthToken(opts.Token).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "txtclock-agent")
	return &Cloudflare{client: client}
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type resultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	Count      int `json:"count"`
	TotalCount int `json:"total_count"`
}

// envelope is the common Cloudflare response wrapper.
type envelope[T any] struct {
	Success    bool         `json:"success"`
	Errors     []apiMessage `json:"errors"`
	Result     T            `json:"result"`
	ResultInfo *resultInfo  `json:"result_info,omitempty"`
}

func (e *envelope[T]) messages() []string {
	out := make([]string, 0, len(e.Errors))
	for _, m := range e.Errors {
		out = append(out, fmt.Sprintf("%d: %s", m.Code, m.Message))
	}
	return out
}

func (e *envelope[T]) codes() []int {
	out := make([]int, 0, len(e.Errors))
	for _, m := range e.Errors {
		out = append(out, m.Code)
	}
	return out
}

type zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// execute runs one API call and unwraps the envelope. Transport errors
// are wrapped; HTTP and API-level failures become *APIError.
func execute[T any](ctx context.Context, c *Cloudflare, op, method, path string, configure func(*resty.Request)) (*envelope[T], error) {
	var ok envelope[T]
	var failed envelope[json.RawMessage]

	req := c.client.R().SetContext(ctx).SetResult(&ok).SetError(&failed)
	if configure != nil {
		configure(req)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode(), Codes: failed.codes(), Messages: failed.messages()}
	}
	if !ok.Success {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode(), Codes: ok.codes(), Messages: ok.messages()}
	}
	return &ok, nil
}

// FindZone implements Client.
func (c *Cloudflare) FindZone(ctx context.Context, domain string) (string, error) {
	env, err := execute[[]zone](ctx, c, "zones.get", http.MethodGet, "/zones", func(r *resty.Request) {
		r.SetQueryParam("name", domain)
	})
	if err != nil {
		return "", err
	}
	if len(env.Result) == 0 || env.Result[0].ID == "" {
		return "", fmt.Errorf("%w: %s", ErrZoneNotFound, domain)
	}
	return env.Result[0].ID, nil
}

// ListEntries implements Client. All pages are fetched.
func (c *Cloudflare) ListEntries(ctx context.Context, zoneID string) ([]Entry, error) {
	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records"

	var entries []Entry
	for page := 1; ; page++ {
		env, err := execute[[]Entry](ctx, c, "dns_records.get", http.MethodGet, path, func(r *resty.Request) {
			r.SetQueryParams(map[string]string{
				"page":     strconv.Itoa(page),
				"per_page": strconv.Itoa(listPageSize),
			})
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, env.Result...)
		if env.ResultInfo == nil || page >= env.ResultInfo.TotalPages || len(env.Result) == 0 {
			return entries, nil
		}
	}
}

// CreateEntry implements Client.
func (c *Cloudflare) CreateEntry(ctx context.Context, zoneID string, rec Record) (string, error) {
	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records"
	env, err := execute[Entry](ctx, c, "dns_records.post", http.MethodPost, path, func(r *resty.Request) {
		r.SetBody(rec)
	})
	if err != nil {
		return "", err
	}
	return env.Result.ID, nil
}

// UpdateEntry implements Client.
func (c *Cloudflare) UpdateEntry(ctx context.Context, zoneID, entryID string, rec Record) error {
	if entryID == "" {
		return &APIError{Op: "dns_records.patch", Messages: []string{"empty entry id"}}
	}
	path := "/zones/" + url.PathEscape(zoneID) + "/dns_records/" + url.PathEscape(entryID)
	_, err := execute[Entry](ctx, c, "dns_records.patch", http.MethodPatch, path, func(r *resty.Request) {
		r.SetBody(rec)
	})
	return err
}
