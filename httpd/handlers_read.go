package httpd

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xrey167/molthub/orm"
	"github.com/xrey167/molthub/registry"
	"github.com/xrey167/molthub/search"
)

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func (s *Server) handleSearch(c *gin.Context) {
	results, err := s.engine.Search(c.Request.Context(), search.Query{
		Text:            c.Query("q"),
		Limit:           intQuery(c, "limit", search.DefaultLimit),
		HighlightedOnly: c.Query("highlightedOnly") == "true",
	})
	if err != nil {
		renderError(c, err)

		return
	}
	if results == nil {
		results = []search.Result{}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

type skillView struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	DisplayName string            `json:"displayName"`
	Summary     string            `json:"summary"`
	Tags        map[string]string `json:"tags"`
	Stats       orm.SkillStats    `json:"stats"`
	ForkKind    string            `json:"forkKind,omitempty"`
	CreatedAt   string            `json:"createdAt"`
	UpdatedAt   string            `json:"updatedAt"`
}

func viewSkill(skill *orm.Skill) skillView {
	tags := make(map[string]string, len(skill.Tags))
	for _, t := range skill.Tags {
		tags[t.Name] = t.VersionID
	}

	return skillView{
		ID:          skill.ID,
		Slug:        skill.Slug,
		DisplayName: skill.DisplayName,
		Summary:     skill.Summary,
		Tags:        tags,
		Stats:       skill.Stats,
		ForkKind:    skill.ForkKind,
		CreatedAt:   skill.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:   skill.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Server) handleListSkills(c *gin.Context) {
	page, err := s.svc.ListSkills(
		c.Request.Context(),
		c.Query("sort"),
		intQuery(c, "limit", 50),
		c.Query("cursor"),
	)
	if err != nil {
		renderError(c, err)

		return
	}

	views := make([]skillView, 0, len(page.Skills))
	for i := range page.Skills {
		views = append(views, viewSkill(&page.Skills[i]))
	}

	c.JSON(http.StatusOK, gin.H{"skills": views, "nextCursor": page.NextCursor})
}

func (s *Server) handleGetSkill(c *gin.Context) {
	detail, err := s.svc.GetSkill(c.Request.Context(), c.Param("slug"))
	if err != nil {
		renderError(c, err)

		return
	}

	resp := gin.H{"skill": viewSkill(detail.Skill)}
	if detail.LatestVersion != nil {
		resp["latestVersion"] = detail.LatestVersion
	}
	if detail.Owner != nil {
		owner := gin.H{"displayName": detail.Owner.DisplayName}
		if detail.Owner.Handle != nil {
			owner["handle"] = *detail.Owner.Handle
		}
		resp["owner"] = owner
	}
	if len(detail.Badges) > 0 {
		kinds := make([]string, 0, len(detail.Badges))
		for _, b := range detail.Badges {
			kinds = append(kinds, b.Kind)
		}
		resp["badges"] = kinds
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListVersions(c *gin.Context) {
	page, err := s.svc.ListVersions(
		c.Request.Context(),
		c.Param("slug"),
		intQuery(c, "limit", 50),
		c.Query("cursor"),
	)
	if err != nil {
		renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"versions": page.Versions, "nextCursor": page.NextCursor})
}

func (s *Server) handleGetVersion(c *gin.Context) {
	version, err := s.svc.GetVersion(
		c.Request.Context(),
		c.Param("slug"),
		c.Param("version"),
	)
	if err != nil {
		renderError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"version": version})
}

func (s *Server) handleGetFile(c *gin.Context) {
	file, err := s.svc.GetFile(
		c.Request.Context(),
		c.Param("slug"),
		c.Query("path"),
		c.Query("version"),
		c.Query("tag"),
	)
	if err != nil {
		renderError(c, err)

		return
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	c.Header("ETag", `"`+file.SHA256+`"`)
	if file.Archived {
		c.Header("Cache-Control", "private, max-age=60")
	} else {
		c.Header("Cache-Control", "public, max-age=300")
	}
	c.Data(http.StatusOK, contentType, file.Content)
}

func (s *Server) handleResolve(c *gin.Context) {
	resolution, err := s.svc.Resolve(
		c.Request.Context(),
		c.Query("slug"),
		c.Query("hash"),
	)
	if err != nil {
		renderError(c, err)

		return
	}

	resp := gin.H{"match": nil, "latestVersion": nil}
	if resolution.Match != nil {
		resp["match"] = gin.H{"version": resolution.Match.Version}
	}
	if resolution.LatestVersion != nil {
		resp["latestVersion"] = gin.H{"version": resolution.LatestVersion.Version}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDownload(c *gin.Context) {
	slug := c.Query("slug")
	if !registry.ValidSlug(slug) {
		renderError(c, registry.Errf(registry.CodeInvalid, "invalid slug"))

		return
	}

	data, name, err := s.svc.Zip(c.Request.Context(), slug, c.Query("version"))
	if err != nil {
		renderError(c, err)

		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/zip", data)
}

func (s *Server) handleWhoami(c *gin.Context) {
	principal, ok := mustPrincipal(c)
	if !ok {
		return
	}

	user, err := s.svc.GetUser(c.Request.Context(), principal.UserID)
	if err != nil {
		renderError(c, err)

		return
	}

	view := gin.H{"displayName": user.DisplayName, "image": user.Image}
	if user.Handle != nil {
		view["handle"] = *user.Handle
	}

	c.JSON(http.StatusOK, gin.H{"user": view})
}
