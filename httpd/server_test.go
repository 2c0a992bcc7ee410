package httpd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrey167/molthub/blob/memblob"
	"github.com/xrey167/molthub/changelog"
	"github.com/xrey167/molthub/embeddings"
	"github.com/xrey167/molthub/httpd"
	"github.com/xrey167/molthub/orm"
	"github.com/xrey167/molthub/orm/memstore"
	"github.com/xrey167/molthub/registry"
	"github.com/xrey167/molthub/search"
)

type env struct {
	server *httptest.Server
	store  *memstore.Store
	svc    *registry.Service
	token  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	store := memstore.New()
	provider := embeddings.NewLocalProvider(64)
	svc := registry.NewService(store, memblob.New(), provider, changelog.DeltaSummarizer{})

	handle := "alice"
	require.NoError(t, store.CreateUser(ctx, &orm.User{
		ID:          "u1",
		Handle:      &handle,
		DisplayName: "Alice",
		Role:        orm.RoleUser,
		CreatedAt:   time.Now().UTC(),
	}))
	token, err := svc.IssueToken(ctx, "u1", "test")
	require.NoError(t, err)

	server := httptest.NewServer(
		httpd.NewServer(svc, search.NewEngine(store, provider), true).Handler(),
	)
	t.Cleanup(server.Close)

	return &env{server: server, store: store, svc: svc, token: token}
}

func (e *env) request(t *testing.T, method, path string, body []byte, contentType string, auth bool) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)

	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func multipartPublish(t *testing.T, slug, version, manifest string) ([]byte, string) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"slug":        slug,
		"displayName": slug,
		"version":     version,
	})
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("payload", string(payload)))
	part, err := mw.CreateFormFile("files", "SKILL.md")
	require.NoError(t, err)
	_, err = part.Write([]byte(manifest))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return body.Bytes(), mw.FormDataContentType()
}

func TestPublishAndReadFlow(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	manifest := "---\nname: demo\ndescription: Demo skill\n---\nBody"
	body, contentType := multipartPublish(t, "demo", "1.0.0", manifest)

	resp := e.request(t, http.MethodPost, "/api/v1/skills", body, contentType, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var published struct {
		SkillID     string `json:"skillId"`
		VersionID   string `json:"versionId"`
		Fingerprint string `json:"fingerprint"`
	}
	decode(t, resp, &published)
	require.NotEmpty(t, published.SkillID)
	require.NotEmpty(t, published.VersionID)

	// Read it back.
	resp = e.request(t, http.MethodGet, "/api/v1/skills/demo", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))

	var detail struct {
		Skill struct {
			Slug    string `json:"slug"`
			Summary string `json:"summary"`
		} `json:"skill"`
		LatestVersion struct {
			Version string `json:"version"`
		} `json:"latestVersion"`
		Owner struct {
			Handle string `json:"handle"`
		} `json:"owner"`
	}
	decode(t, resp, &detail)
	assert.Equal(t, "demo", detail.Skill.Slug)
	assert.Equal(t, "Demo skill", detail.Skill.Summary)
	assert.Equal(t, "1.0.0", detail.LatestVersion.Version)
	assert.Equal(t, "alice", detail.Owner.Handle)

	// Resolve the published fingerprint.
	resp = e.request(t, http.MethodGet,
		"/api/v1/skill/resolve?slug=demo&hash="+published.Fingerprint, nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var resolved struct {
		Match *struct {
			Version string `json:"version"`
		} `json:"match"`
	}
	decode(t, resp, &resolved)
	require.NotNil(t, resolved.Match)
	assert.Equal(t, "1.0.0", resolved.Match.Version)

	// Raw file read carries the sha256 ETag.
	resp = e.request(t, http.MethodGet, "/api/v1/skills/demo/file?path=SKILL.md", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("ETag"))
	_ = resp.Body.Close()

	// Zip download.
	resp = e.request(t, http.MethodGet, "/api/v1/download?slug=demo&version=1.0.0", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	_ = resp.Body.Close()
}

func TestPublishRequiresAuth(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	body, contentType := multipartPublish(t, "demo", "1.0.0", "---\nname: demo\n---\nBody")
	resp := e.request(t, http.MethodPost, "/api/v1/skills", body, contentType, false)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublishVersionConflictHTTP(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	manifest := "---\nname: demo\n---\nBody"
	body, contentType := multipartPublish(t, "demo", "1.0.0", manifest)
	resp := e.request(t, http.MethodPost, "/api/v1/skills", body, contentType, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	body, contentType = multipartPublish(t, "demo", "1.0.0", manifest+" changed")
	resp = e.request(t, http.MethodPost, "/api/v1/skills", body, contentType, true)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWhoami(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp := e.request(t, http.MethodGet, "/api/v1/whoami", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var who struct {
		User struct {
			Handle string `json:"handle"`
		} `json:"user"`
	}
	decode(t, resp, &who)
	assert.Equal(t, "alice", who.User.Handle)

	resp = e.request(t, http.MethodGet, "/api/v1/whoami", nil, "", false)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWriteRateLimit(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	// 30 write requests from one IP fit the budget; the 31st is 429.
	var last *http.Response
	for n := 1; n <= 31; n++ {
		resp := e.request(t, http.MethodPost, "/api/v1/stars/demo", nil, "", false)
		if n < 31 {
			assert.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode, "request %d", n)
		}
		if last != nil {
			_ = last.Body.Close()
		}
		last = resp
	}
	defer func() { _ = last.Body.Close() }()

	require.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.Equal(t, "0", last.Header.Get("X-RateLimit-Remaining"))

	retryAfter, err := strconv.Atoi(last.Header.Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)
}

func TestStarFlow(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	body, contentType := multipartPublish(t, "demo", "1.0.0", "---\nname: demo\n---\nBody")
	resp := e.request(t, http.MethodPost, "/api/v1/skills", body, contentType, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = e.request(t, http.MethodPost, "/api/v1/stars/demo", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var starred struct {
		Stars int64 `json:"stars"`
	}
	decode(t, resp, &starred)
	assert.Equal(t, int64(1), starred.Stars)

	resp = e.request(t, http.MethodDelete, "/api/v1/stars/demo", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &starred)
	assert.Equal(t, int64(0), starred.Stars)
}

func TestSoftDeleteFlowHTTP(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	body, contentType := multipartPublish(t, "demo", "1.0.0", "---\nname: demo\n---\nBody")
	resp := e.request(t, http.MethodPost, "/api/v1/skills", body, contentType, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = e.request(t, http.MethodDelete, "/api/v1/skills/demo", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = e.request(t, http.MethodGet, "/api/v1/skills/demo", nil, "", false)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = e.request(t, http.MethodPost, "/api/v1/skills/demo/undelete", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = e.request(t, http.MethodGet, "/api/v1/skills/demo", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestUploadURLFlow(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp := e.request(t, http.MethodPost, "/api/v1/upload-url", nil, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var issued struct {
		StorageID string `json:"storageId"`
		UploadURL string `json:"uploadUrl"`
	}
	decode(t, resp, &issued)
	require.NotEmpty(t, issued.StorageID)

	manifest := "---\nname: demo\ndescription: via upload-url\n---\nBody"
	resp = e.request(t, http.MethodPut, issued.UploadURL, []byte(manifest), "text/markdown", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var uploaded struct {
		SHA256 string `json:"sha256"`
		Size   int64  `json:"size"`
	}
	decode(t, resp, &uploaded)
	assert.Equal(t, int64(len(manifest)), uploaded.Size)

	// JSON publish referencing the uploaded blob.
	payload, err := json.Marshal(map[string]any{
		"slug":        "demo",
		"displayName": "Demo",
		"version":     "1.0.0",
		"files": []map[string]any{{
			"path":      "SKILL.md",
			"size":      uploaded.Size,
			"storageId": issued.StorageID,
			"sha256":    uploaded.SHA256,
		}},
	})
	require.NoError(t, err)

	resp = e.request(t, http.MethodPost, "/api/v1/skills", payload, "application/json", true)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListSkillsPagination(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	for i := 0; i < 3; i++ {
		slug := fmt.Sprintf("skill-%d", i)
		body, contentType := multipartPublish(t, slug, "1.0.0",
			"---\nname: "+slug+"\n---\nBody of "+slug)
		resp := e.request(t, http.MethodPost, "/api/v1/skills", body, contentType, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp := e.request(t, http.MethodGet, "/api/v1/skills?limit=2&sort=updated", nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page struct {
		Skills     []json.RawMessage `json:"skills"`
		NextCursor string            `json:"nextCursor"`
	}
	decode(t, resp, &page)
	assert.Len(t, page.Skills, 2)
	require.NotEmpty(t, page.NextCursor)

	resp = e.request(t, http.MethodGet,
		"/api/v1/skills?limit=2&sort=updated&cursor="+page.NextCursor, nil, "", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &page)
	assert.Len(t, page.Skills, 1)
}
