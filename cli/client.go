package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// requestTimeout bounds every non-upload registry call.
const requestTimeout = 15 * time.Second

// Client is the registry API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	// uploads use a separate client with no overall timeout; large
	// bundles may legitimately take longer than the request budget.
	uploadHTTP *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		http:       &http.Client{Timeout: requestTimeout},
		uploadHTTP: &http.Client{},
	}
}

// APIError is a non-2xx registry response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("registry error %d (%s): %s", e.Status, e.Code, e.Message)
	}

	return fmt.Sprintf("registry error %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the registry.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)

	return ok && apiErr.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	client := c.http
	if method == http.MethodPost && body != nil {
		client = c.uploadHTTP
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// Honour Retry-After on requests without a body; a request with a
	// body has consumed it and its 429 is surfaced to the caller instead.
	if resp.StatusCode == http.StatusTooManyRequests && body == nil {
		if wait := retryAfter(resp); wait > 0 && wait <= 2*time.Minute {
			_ = resp.Body.Close()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}

			return c.do(ctx, method, path, query, nil, contentType, out)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}

	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}

	return time.Duration(secs) * time.Second
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}

	return apiErr
}

// --- read surface ---

type SkillInfo struct {
	Skill struct {
		ID          string            `json:"id"`
		Slug        string            `json:"slug"`
		DisplayName string            `json:"displayName"`
		Summary     string            `json:"summary"`
		Tags        map[string]string `json:"tags"`
		UpdatedAt   string            `json:"updatedAt"`
	} `json:"skill"`
	LatestVersion *struct {
		Version string `json:"version"`
	} `json:"latestVersion"`
	Owner *struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"owner"`
}

func (c *Client) GetSkill(ctx context.Context, slug string) (*SkillInfo, error) {
	var info SkillInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/skills/"+url.PathEscape(slug), nil, nil, "", &info); err != nil {
		return nil, err
	}

	return &info, nil
}

type ResolveResult struct {
	Match *struct {
		Version string `json:"version"`
	} `json:"match"`
	LatestVersion *struct {
		Version string `json:"version"`
	} `json:"latestVersion"`
}

func (c *Client) Resolve(ctx context.Context, slug, hash string) (*ResolveResult, error) {
	q := url.Values{"slug": {slug}, "hash": {hash}}

	var res ResolveResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/skill/resolve", q, nil, "", &res); err != nil {
		return nil, err
	}

	return &res, nil
}

type SearchResult struct {
	Score       float64 `json:"score"`
	Slug        string  `json:"slug"`
	DisplayName string  `json:"displayName"`
	Summary     string  `json:"summary"`
	Version     string  `json:"version"`
	UpdatedAt   string  `json:"updatedAt"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/search", q, nil, "", &resp); err != nil {
		return nil, err
	}

	return resp.Results, nil
}

type ListedSkill struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Summary     string `json:"summary"`
	Stats       struct {
		Downloads int64 `json:"downloads"`
		Stars     int64 `json:"stars"`
	} `json:"stats"`
	UpdatedAt string `json:"updatedAt"`
}

func (c *Client) ListSkills(ctx context.Context, sort string, limit int) ([]ListedSkill, error) {
	q := url.Values{}
	if sort != "" {
		q.Set("sort", sort)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Skills []ListedSkill `json:"skills"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/skills", q, nil, "", &resp); err != nil {
		return nil, err
	}

	return resp.Skills, nil
}

type WhoamiUser struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Image       string `json:"image"`
}

func (c *Client) Whoami(ctx context.Context) (*WhoamiUser, error) {
	var resp struct {
		User WhoamiUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/whoami", nil, nil, "", &resp); err != nil {
		return nil, err
	}

	return &resp.User, nil
}

// DownloadZip fetches the zip archive of a version.
func (c *Client) DownloadZip(ctx context.Context, slug, version string) ([]byte, error) {
	q := url.Values{"slug": {slug}}
	if version != "" {
		q.Set("version", version)
	}

	u := c.baseURL + "/api/v1/download?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	return io.ReadAll(resp.Body)
}

// --- write surface ---

type PublishOptions struct {
	Slug        string
	DisplayName string
	Version     string
	Changelog   string
	Tags        []string
	ForkOf      string // "slug" or "slug@version"
}

type PublishResponse struct {
	SkillID     string `json:"skillId"`
	VersionID   string `json:"versionId"`
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Created     bool   `json:"created"`
}

// Publish uploads a bundle as one multipart request: the payload JSON
// plus one part per file. onFile, when set, is called before each file
// part for progress display.
func (c *Client) Publish(
	ctx context.Context,
	opts PublishOptions,
	files []LocalFile,
	onFile func(path string),
) (*PublishResponse, error) {
	payload := map[string]any{
		"slug":        opts.Slug,
		"displayName": opts.DisplayName,
		"version":     opts.Version,
		"changelog":   opts.Changelog,
		"tags":        opts.Tags,
	}
	if opts.ForkOf != "" {
		forkSlug, forkVersion := splitForkRef(opts.ForkOf)
		payload["forkOf"] = map[string]string{"slug": forkSlug, "version": forkVersion}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("payload", string(payloadJSON)); err != nil {
		return nil, err
	}
	for _, f := range files {
		if onFile != nil {
			onFile(f.Path)
		}
		part, err := mw.CreateFormFile("files", f.Path)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp PublishResponse
	err = c.do(
		ctx,
		http.MethodPost,
		"/api/v1/skills",
		nil,
		&body,
		mw.FormDataContentType(),
		&resp,
	)
	if err != nil {
		return nil, err
	}

	return &resp, nil
}

func splitForkRef(ref string) (string, string) {
	if i := strings.IndexByte(ref, '@'); i >= 0 {
		return ref[:i], ref[i+1:]
	}

	return ref, ""
}

func (c *Client) Delete(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/skills/"+url.PathEscape(slug), nil, nil, "", nil)
}

func (c *Client) Undelete(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/skills/"+url.PathEscape(slug)+"/undelete", nil, nil, "", nil)
}
