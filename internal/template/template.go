// Package template renders the {placeholder} message templates stored per
// subscription type and channel.
package template

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

// ErrUnknownPlaceholder is returned when a template names a key that was not supplied.
var ErrUnknownPlaceholder = errors.New("unknown template placeholder")

// Values maps placeholder names to their substitutions.
type Values map[string]string

// Escaped braces are rewritten to tags that cannot collide with stored text:
// Postgres TEXT columns reject NUL bytes.
const (
	openBrace  = "\x00"
	closeBrace = "\x00\x00"
)

var escapes = strings.NewReplacer("{{", "{"+openBrace+"}", "}}", "{"+closeBrace+"}")

// Render substitutes every {key} in tmpl. "{{" and "}}" produce literal braces.
// Braces that do not enclose an identifier are copied verbatim.
func Render(tmpl string, values Values) (string, error) {
	return execute(tmpl, func(w io.Writer, key string) (int, error) {
		v, ok := values[key]
		if !ok {
			return 0, fmt.Errorf("%w: {%s}", ErrUnknownPlaceholder, key)
		}
		return io.WriteString(w, v)
	})
}

// Placeholders returns the distinct keys referenced by tmpl in order of appearance.
func Placeholders(tmpl string) []string {
	seen := map[string]bool{}
	var keys []string
	_, _ = execute(tmpl, func(_ io.Writer, key string) (int, error) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
		return 0, nil
	})
	return keys
}

// Validate checks that tmpl only references the given keys.
func Validate(tmpl string, keys ...string) error {
	allowed := make(Values, len(keys))
	for _, k := range keys {
		allowed[k] = ""
	}
	_, err := Render(tmpl, allowed)
	return err
}

// execute runs tmpl through fasttemplate, calling placeholder for identifier
// tags only. Other tags are written back as they appeared.
func execute(tmpl string, placeholder func(w io.Writer, key string) (int, error)) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))

	_, err := fasttemplate.ExecuteFunc(escapes.Replace(tmpl), "{", "}", &b, func(w io.Writer, tag string) (int, error) {
		switch {
		case tag == openBrace:
			return io.WriteString(w, "{")
		case tag == closeBrace:
			return io.WriteString(w, "}")
		case isIdentifier(tag):
			return placeholder(w, tag)
		default:
			return io.WriteString(w, "{"+tag+"}")
		}
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
