package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// localFile serves secrets from a developer file of "secret://name[?version=N]=value" lines.
// A missing file is treated as empty.
type localFile struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

func (l *localFile) lookup(ref Ref, version string) (string, bool, error) {
	l.once.Do(l.load)
	if l.err != nil {
		return "", false, l.err
	}
	if v, ok := l.values[versionKey(ref.String(), version)]; ok {
		return v, true, nil
	}
	v, ok := l.values[ref.String()]
	return v, ok, nil
}

func (l *localFile) load() {
	l.values = map[string]string{}
	if l.path == "" {
		return
	}
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		l.err = fmt.Errorf("secrets: open %s: %w", l.path, err)
		return
	}
	defer f.Close()
	if l.values, err = parseLocalSecrets(f); err != nil {
		l.err = fmt.Errorf("secrets: read %s: %w", l.path, err)
	}
}

func parseLocalSecrets(r io.Reader) (map[string]string, error) {
	values := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitLocalLine(line)
		if !ok {
			continue
		}
		ref, err := ParseRef(key)
		if err != nil {
			values[key] = value
			continue
		}
		version := ref.Version
		if version == "" {
			version = "latest"
		}
		values[ref.String()] = value
		values[versionKey(ref.String(), version)] = value
	}
	return values, scanner.Err()
}

// splitLocalLine separates the reference from the value. Values may contain "="; a reference
// with a query string owns one "=" per parameter.
func splitLocalLine(line string) (string, string, bool) {
	sep := strings.Index(line, "=")
	if q := strings.Index(line, "?"); q >= 0 && q < sep {
		pos := q + 1
		for {
			eq := strings.Index(line[pos:], "=")
			if eq < 0 {
				return "", "", false
			}
			pos += eq + 1
			next := strings.IndexAny(line[pos:], "&=")
			if next < 0 {
				return "", "", false
			}
			pos += next
			if line[pos] == '=' {
				sep = pos
				break
			}
			pos++
		}
	}
	if sep <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:sep])
	return key, strings.TrimSpace(line[sep+1:]), key != ""
}
