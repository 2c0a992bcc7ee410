package registry

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the parsed view of a SKILL.md file: the YAML frontmatter
// plus the Markdown body that follows it.
type Manifest struct {
	Name        string
	Description string
	// Frontmatter holds every recognised and unrecognised key as raw
	// JSON-compatible values.
	Frontmatter map[string]any
	// Metadata is the optional free-form nested metadata object.
	Metadata map[string]any
	Body     string
}

// ParseManifest splits frontmatter from body and decodes the known
// keys. A manifest without frontmatter is legal; every field defaults
// to empty. Malformed YAML is tolerated (the raw body is kept) so a
// bad manifest never blocks a publish.
func ParseManifest(content []byte) *Manifest {
	m := &Manifest{Body: string(content)}

	raw := string(content)
	if !strings.HasPrefix(raw, "---") {
		return m
	}

	rest := raw[3:]
	// The frontmatter block ends at the first line beginning with "---".
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return m
	}

	fmBlock := rest[:end]
	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(fmBlock), &fields); err != nil {
		return m
	}

	m.Frontmatter = fields
	m.Body = body

	if name, ok := fields["name"].(string); ok {
		m.Name = strings.TrimSpace(name)
	}
	if desc, ok := fields["description"].(string); ok {
		m.Description = strings.TrimSpace(desc)
	}
	if meta, ok := fields["metadata"].(map[string]any); ok {
		m.Metadata = meta
	}

	return m
}
