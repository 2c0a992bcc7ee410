package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidSlug reports whether s is a lowercase url-safe slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// ValidSemver reports whether v parses as strict semver.
func ValidSemver(v string) bool {
	_, err := semver.StrictNewVersion(v)

	return err == nil
}

// SanitizePath validates a bundle-relative file path: non-empty, no
// leading slash, no backslash, no ".." component. Returns the cleaned
// path.
func SanitizePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty file path")
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("absolute file path %q", p)
	}
	if strings.ContainsRune(p, '\\') {
		return "", fmt.Errorf("backslash in file path %q", p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("parent traversal in file path %q", p)
		}
		if part == "" {
			return "", fmt.Errorf("empty component in file path %q", p)
		}
	}

	return p, nil
}

// validatePublish runs the ordered §4.1 validation over a publish
// request. The first failure is fatal.
func validatePublish(req *PublishRequest) error {
	if !ValidSlug(req.Slug) {
		return Errf(CodeInvalid, fmt.Sprintf("invalid slug %q", req.Slug))
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return Errf(CodeInvalid, "displayName must not be empty")
	}
	if !ValidSemver(req.Version) {
		return Errf(CodeInvalid, fmt.Sprintf("invalid semver %q", req.Version))
	}
	if len(req.Files) == 0 {
		return Errf(CodeInvalid, "bundle has no files")
	}

	var totalSize int64
	manifestCount := 0
	for i := range req.Files {
		f := &req.Files[i]

		clean, err := SanitizePath(f.Path)
		if err != nil {
			return &ServiceError{
				Code:    CodeInvalid,
				Message: "invalid file path: " + err.Error(),
				Inner:   err,
			}
		}
		f.Path = clean

		if !IsAllowedTextFile(f.Path, f.ContentType) {
			return &ServiceError{
				Code:    CodeUnsupported,
				Message: fmt.Sprintf("file %q is not an allowed text file", f.Path),
				Inner:   ErrUnsupportedFileType,
			}
		}

		if len(f.SHA256) != 64 || strings.ToLower(f.SHA256) != f.SHA256 {
			return Errf(CodeInvalid, fmt.Sprintf("file %q has a malformed sha256", f.Path))
		}

		totalSize += f.Size
		if IsSkillManifest(f.Path) {
			manifestCount++
		}
	}

	if totalSize > MaxBundleBytes {
		return &ServiceError{
			Code:    CodeTooLarge,
			Message: fmt.Sprintf("bundle is %d bytes, limit is %d", totalSize, MaxBundleBytes),
			Inner:   ErrBundleTooLarge,
		}
	}
	if manifestCount != 1 {
		return &ServiceError{
			Code:    CodeInvalid,
			Message: "bundle must contain exactly one SKILL.md",
			Inner:   ErrMissingSkillMd,
		}
	}

	return nil
}
