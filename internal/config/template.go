package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wesleyorama2/rhino/internal/assert"
	"github.com/wesleyorama2/rhino/internal/session"
)

var placeholder = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Vars are the fixed placeholder values of a template: settings variables
// plus any forEach bindings in scope.
type Vars map[string]string

func (v Vars) with(name string, elem any) Vars {
	out := make(Vars, len(v)+1)
	for k, val := range v {
		out[k] = val
	}
	out[name] = fmt.Sprint(elem)
	if m, ok := elem.(map[string]any); ok {
		for k, val := range m {
			out[name+"."+k] = fmt.Sprint(val)
		}
	}
	return out
}

// Template is a string with {{placeholders}} resolved per session.
//
// A placeholder resolves, in order, to a variable, the actor ("actor",
// "actor.id", "actor.username"), a JSONPath into a saved response
// ("login.$.token" or "login.token"), or a session value. Unresolved
// placeholders are left untouched.
type Template struct {
	raw    string
	vars   Vars
	static bool
}

// NewTemplate parses raw.
func NewTemplate(raw string, vars Vars) *Template {
	return &Template{raw: raw, vars: vars, static: !placeholder.MatchString(raw)}
}

// Render resolves every placeholder against s.
func (t *Template) Render(s *session.Session) string {
	if t.static {
		return t.raw
	}
	return placeholder.ReplaceAllStringFunc(t.raw, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := t.resolve(s, key); ok {
			return v
		}
		return m
	})
}

func (t *Template) resolve(s *session.Session, key string) (string, bool) {
	if v, ok := t.vars[key]; ok {
		return v, true
	}

	switch key {
	case "actor", "actor.id":
		return s.Actor().ID, true
	case "actor.username":
		return s.Actor().Username, true
	}

	if step, path, ok := strings.Cut(key, "."); ok {
		if _, saved := assert.Response(s, step); saved {
			v, err := assert.ExtractString(s, step, path)
			return v, err == nil
		}
	}

	if v, ok := s.Lookup(key); ok {
		return fmt.Sprint(v), true
	}
	return "", false
}
