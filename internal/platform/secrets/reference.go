package secrets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Ref is a parsed secret reference of the form secret://NAME?version=V&project=P.
// The query parameters are optional.
type Ref struct {
	Name    string
	Version string
	Project string
}

// ParseRef parses raw. The legacy sm:// scheme is accepted as an alias of secret://.
func ParseRef(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, errors.New("secrets: empty reference")
	}
	if rest, ok := strings.CutPrefix(raw, "sm://"); ok {
		raw = "secret://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return Ref{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return Ref{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	q := u.Query()
	return Ref{
		Name:    name,
		Version: strings.TrimSpace(q.Get("version")),
		Project: strings.TrimSpace(q.Get("project")),
	}, nil
}

// String returns the canonical reference without version or project.
func (r Ref) String() string {
	return "secret://" + r.Name
}

func (r Ref) resourceName(project, version string) string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.Name, version)
}

func versionKey(canonical, version string) string {
	return canonical + "#" + version
}
