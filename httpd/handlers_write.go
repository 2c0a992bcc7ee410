package httpd

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xrey167/molthub/orm"
	"github.com/xrey167/molthub/registry"
)

// publishPayload is the JSON publish body; on the multipart path the
// same document arrives in the "payload" field without files.
type publishPayload struct {
	Slug        string   `json:"slug"`
	DisplayName string   `json:"displayName"`
	Version     string   `json:"version"`
	Changelog   string   `json:"changelog"`
	Tags        []string `json:"tags"`
	ForkOf      *struct {
		Slug    string `json:"slug"`
		Version string `json:"version"`
	} `json:"forkOf"`
	Source string `json:"source"`
	Files  []struct {
		Path        string `json:"path"`
		Size        int64  `json:"size"`
		StorageID   string `json:"storageId"`
		SHA256      string `json:"sha256"`
		ContentType string `json:"contentType"`
	} `json:"files"`
}

func (p *publishPayload) toRequest() *registry.PublishRequest {
	req := &registry.PublishRequest{
		Slug:        p.Slug,
		DisplayName: p.DisplayName,
		Version:     p.Version,
		Changelog:   p.Changelog,
		Tags:        p.Tags,
		Source:      p.Source,
	}
	if p.ForkOf != nil {
		req.ForkOf = &registry.ForkRef{Slug: p.ForkOf.Slug, Version: p.ForkOf.Version}
	}
	for _, f := range p.Files {
		req.Files = append(req.Files, orm.VersionFile{
			Path:        f.Path,
			Size:        f.Size,
			StorageID:   f.StorageID,
			SHA256:      strings.ToLower(f.SHA256),
			ContentType: f.ContentType,
		})
	}

	return req
}

func (s *Server) handlePublish(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	contentType := c.ContentType()

	var req *registry.PublishRequest
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		parsed, err := s.parseMultipartPublish(c)
		if err != nil {
			renderError(c, err)

			return
		}
		req = parsed
	case contentType == "application/json":
		var payload publishPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			renderError(c, registry.Errf(registry.CodeInvalid, "malformed JSON body"))

			return
		}
		req = payload.toRequest()
	default:
		renderError(c, registry.Errf(
			registry.CodeUnsupported,
			"publish expects application/json or multipart/form-data",
		))

		return
	}

	result, err := s.svc.Publish(c.Request.Context(), principal, req)
	if err != nil {
		renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"skillId":     result.SkillID,
		"versionId":   result.VersionID,
		"version":     result.Version,
		"fingerprint": result.Fingerprint,
		"created":     result.Created,
	})
}

// parseMultipartPublish reads the "payload" JSON field and streams
// each "files" part into the object store.
func (s *Server) parseMultipartPublish(c *gin.Context) (*registry.PublishRequest, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, registry.Errf(registry.CodeInvalid, "malformed multipart body")
	}

	payloadValues := form.Value["payload"]
	if len(payloadValues) != 1 {
		return nil, registry.Errf(registry.CodeInvalid, "multipart publish requires one payload field")
	}

	var payload publishPayload
	if err := json.Unmarshal([]byte(payloadValues[0]), &payload); err != nil {
		return nil, registry.Errf(registry.CodeInvalid, "malformed payload JSON")
	}
	req := payload.toRequest()

	for _, part := range form.File["files"] {
		f, err := part.Open()
		if err != nil {
			return nil, registry.Errf(registry.CodeInvalid, "unreadable file part")
		}

		storageID, sha, size, serr := s.svc.StoreBlob(c.Request.Context(), f)
		_ = f.Close()
		if serr != nil {
			return nil, serr
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "application/octet-stream" {
			// The generic multipart default says nothing about the
			// file; let the extension speak for it.
			contentType = ""
		}

		req.Files = append(req.Files, orm.VersionFile{
			Path:        part.Filename,
			Size:        size,
			StorageID:   storageID,
			SHA256:      sha,
			ContentType: contentType,
		})
	}

	return req, nil
}

func (s *Server) handleSoftDelete(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	if err := s.svc.SetSoftDeletedBySlug(
		c.Request.Context(), principal, c.Param("slug"), true,
	); err != nil {
		renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleUndelete(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	if err := s.svc.SetSoftDeletedBySlug(
		c.Request.Context(), principal, c.Param("slug"), false,
	); err != nil {
		renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": false})
}

func (s *Server) handleStar(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	stars, err := s.svc.Star(c.Request.Context(), principal, c.Param("slug"))
	if err != nil {
		renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"stars": stars})
}

func (s *Server) handleUnstar(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	stars, err := s.svc.Unstar(c.Request.Context(), principal, c.Param("slug"))
	if err != nil {
		renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"stars": stars})
}

// handleUploadURL begins the two-step publish: it issues a storage id
// and the relative URL the client PUTs the bytes to.
func (s *Server) handleUploadURL(c *gin.Context) {
	if _, ok := mustPrincipal(c); !ok {
		return
	}

	id := registry.NewStorageID()
	c.JSON(http.StatusOK, gin.H{
		"storageId": id,
		"uploadUrl": "/api/v1/upload/" + id,
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	if _, ok := mustPrincipal(c); !ok {
		return
	}

	id := c.Param("id")
	sha, size, err := s.svc.StoreBlobAt(c.Request.Context(), id, c.Request.Body)
	if err != nil {
		renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"storageId": id, "sha256": sha, "size": size})
}
