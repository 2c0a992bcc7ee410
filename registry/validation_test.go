package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xrey167/molthub/orm"
)

func TestValidSlug(t *testing.T) {
	t.Parallel()

	valid := []string{"demo", "a", "0start", "my-skill-2"}
	for _, s := range valid {
		assert.True(t, ValidSlug(s), s)
	}

	invalid := []string{"", "-demo", "Demo", "my_skill", "has space", "ümlaut"}
	for _, s := range invalid {
		assert.False(t, ValidSlug(s), s)
	}
}

func TestValidSemver(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidSemver("1.0.0"))
	assert.True(t, ValidSemver("0.2.13"))
	assert.True(t, ValidSemver("2.0.0-rc.1"))
	assert.False(t, ValidSemver("1.0"))
	assert.False(t, ValidSemver("v1.0.0"))
	assert.False(t, ValidSemver("latest"))
}

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		wantOK bool
	}{
		{"SKILL.md", true},
		{"docs/usage.md", true},
		{"", false},
		{"  ", false},
		{"/etc/passwd", false},
		{"../escape.md", false},
		{"docs/../../escape.md", false},
		{`docs\windows.md`, false},
		{"docs//double.md", false},
	}
	for _, tt := range tests {
		_, err := SanitizePath(tt.in)
		if tt.wantOK {
			assert.NoError(t, err, tt.in)
		} else {
			assert.Error(t, err, tt.in)
		}
	}
}

func TestIsAllowedTextFile(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAllowedTextFile("SKILL.md", ""))
	assert.True(t, IsAllowedTextFile("config.yaml", ""))
	assert.True(t, IsAllowedTextFile("scripts/run.sh", ""))
	assert.True(t, IsAllowedTextFile("LICENSE", ""))
	assert.True(t, IsAllowedTextFile("weird.bin", "text/plain"))

	assert.False(t, IsAllowedTextFile("logo.png", ""))
	assert.False(t, IsAllowedTextFile("binary", ""))
	assert.False(t, IsAllowedTextFile("blob.bin", "application/octet-stream"))
}

func validRequest() *PublishRequest {
	return &PublishRequest{
		Slug:        "demo",
		DisplayName: "Demo",
		Version:     "1.0.0",
		Files: []orm.VersionFile{
			{Path: "SKILL.md", Size: 24, SHA256: sha("manifest"), StorageID: "s1"},
		},
	}
}

func TestValidatePublishOrder(t *testing.T) {
	t.Parallel()

	t.Run("valid request passes", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, validatePublish(validRequest()))
	})

	t.Run("bad slug", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Slug = "Bad Slug"
		err := validatePublish(req)
		require.Error(t, err)
		assert.Equal(t, CodeInvalid, err.(*ServiceError).Code)
	})

	t.Run("blank display name", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.DisplayName = "   "
		require.Error(t, validatePublish(req))
	})

	t.Run("bad semver", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Version = "1.0"
		require.Error(t, validatePublish(req))
	})

	t.Run("disallowed file type", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Files = append(req.Files, orm.VersionFile{
			Path: "logo.png", Size: 10, SHA256: sha("png"), StorageID: "s2",
		})
		err := validatePublish(req)
		require.Error(t, err)
		var svcErr *ServiceError
		require.True(t, errors.As(err, &svcErr))
		assert.Equal(t, CodeUnsupported, svcErr.Code)
		assert.True(t, errors.Is(err, ErrUnsupportedFileType))
	})

	t.Run("oversized bundle", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Files[0].Size = MaxBundleBytes + 1
		err := validatePublish(req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrBundleTooLarge))
	})

	t.Run("missing manifest", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Files[0].Path = "README.md"
		err := validatePublish(req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingSkillMd))
	})

	t.Run("two manifests", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Files = append(req.Files, orm.VersionFile{
			Path: "skills.md", Size: 5, SHA256: sha("other"), StorageID: "s2",
		})
		err := validatePublish(req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingSkillMd))
	})

	t.Run("uppercase sha rejected", func(t *testing.T) {
		t.Parallel()
		req := validRequest()
		req.Files[0].SHA256 = strings.ToUpper(req.Files[0].SHA256)
		require.Error(t, validatePublish(req))
	})
}

func TestIsSkillManifest(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSkillManifest("SKILL.md"))
	assert.True(t, IsSkillManifest("skill.md"))
	assert.True(t, IsSkillManifest("Skills.MD"))
	assert.False(t, IsSkillManifest("docs/SKILL.md"))
	assert.False(t, IsSkillManifest("NOTSKILL.md"))
}
