package registry

import (
	"path"
	"strings"
)

// MaxBundleBytes is the total declared size a bundle may reach.
const MaxBundleBytes = 50 << 20

// textExtensions is the allow-list of extensions a bundle file may
// carry. Binary artifacts are rejected at publish time.
var textExtensions = map[string]bool{
	".md":           true,
	".markdown":     true,
	".mdx":          true,
	".txt":          true,
	".text":         true,
	".yaml":         true,
	".yml":          true,
	".json":         true,
	".jsonc":        true,
	".toml":         true,
	".ini":          true,
	".cfg":          true,
	".conf":         true,
	".csv":          true,
	".tsv":          true,
	".xml":          true,
	".html":         true,
	".css":          true,
	".js":           true,
	".ts":           true,
	".py":           true,
	".sh":           true,
	".bash":         true,
	".zsh":          true,
	".ps1":          true,
	".sql":          true,
	".env":          true,
	".gitignore":    true,
	".editorconfig": true,
}

// textContentTypes maps declared content types to acceptance. Any
// text/* type is accepted wholesale. application/octet-stream is the
// generic multipart default and carries no signal; it falls through to
// the extension check.
var textContentTypes = map[string]bool{
	"application/json":       true,
	"application/x-yaml":     true,
	"application/yaml":       true,
	"application/toml":       true,
	"application/xml":        true,
	"application/javascript": true,
	"application/x-sh":       true,
}

// IsAllowedTextFile reports whether a file may enter a bundle, judged
// by its declared content type first, then its extension. Extensionless
// files named like dotfiles (e.g. ".gitignore") are matched whole.
func IsAllowedTextFile(filePath, contentType string) bool {
	if contentType != "" {
		ct := strings.ToLower(strings.TrimSpace(contentType))
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = strings.TrimSpace(ct[:i])
		}
		if strings.HasPrefix(ct, "text/") {
			return true
		}
		if textContentTypes[ct] {
			return true
		}
	}

	base := strings.ToLower(path.Base(filePath))
	if textExtensions[base] {
		return true
	}

	ext := strings.ToLower(path.Ext(filePath))
	if ext == "" {
		// Extensionless files like LICENSE or Makefile are common in
		// real bundles and always plain text.
		return base == "license" || base == "makefile" || base == "dockerfile" ||
			base == "readme" || base == "codeowners"
	}

	return textExtensions[ext]
}

// IsSkillManifest reports whether the path names the bundle manifest,
// matched case-insensitively against SKILL.md or skills.md at the
// bundle root.
func IsSkillManifest(filePath string) bool {
	lower := strings.ToLower(filePath)

	return lower == "skill.md" || lower == "skills.md"
}
