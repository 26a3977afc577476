package assert

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/rhino/internal/dsl"
	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/transport"
)

// Response returns the response saved under step, looked up in the actor
// scope first and then the shared scope.
func Response(s *session.Session, step string) (*transport.Response, bool) {
	v, ok := s.Lookup(step)
	if !ok {
		return nil, false
	}
	switch r := v.(type) {
	case dsl.HTTPResult:
		return r.Response, r.Response != nil
	case *dsl.HTTPResult:
		if r == nil {
			return nil, false
		}
		return r.Response, r.Response != nil
	case *transport.Response:
		return r, r != nil
	default:
		return nil, false
	}
}

// Status holds when the response saved under step has one of codes. With
// no codes any 2xx or 3xx status passes.
func Status(step string, codes ...int) dsl.Predicate {
	codes = slices.Clone(codes)
	return func(s *session.Session) bool {
		resp, ok := Response(s, step)
		if !ok {
			return false
		}
		if len(codes) == 0 {
			return resp.IsSuccess()
		}
		return slices.Contains(codes, resp.StatusCode)
	}
}

// JSONPath holds when the value at path in the body saved under step
// equals want.
func JSONPath(step, path string, want any) dsl.Predicate {
	return func(s *session.Session) bool {
		resp, ok := Response(s, step)
		if !ok {
			return false
		}
		got, err := Extract(resp.Body, path)
		if err != nil {
			return false
		}
		return Equal(got, want)
	}
}

// Exists holds when path is present in the body saved under step.
func Exists(step, path string) dsl.Predicate {
	return func(s *session.Session) bool {
		resp, ok := Response(s, step)
		if !ok {
			return false
		}
		_, err := Extract(resp.Body, path)
		return err == nil
	}
}

// Schema compiles schema and returns a predicate holding when the body saved
// under step validates against it. Violations are logged at debug level.
func Schema(step string, schema []byte, log zerolog.Logger) (dsl.Predicate, error) {
	compiled, err := CompileSchema(schema)
	if err != nil {
		return nil, err
	}
	return func(s *session.Session) bool {
		resp, ok := Response(s, step)
		if !ok {
			return false
		}
		if err := ValidateSchema(compiled, resp.Body); err != nil {
			log.Debug().Err(err).Str("step", step).Str("actor", s.Actor().ID).Msg("schema validation failed")
			return false
		}
		return true
	}, nil
}

// ExtractString reads path from the body saved under step as text.
func ExtractString(s *session.Session, step, path string) (string, error) {
	resp, ok := Response(s, step)
	if !ok {
		return "", fmt.Errorf("no response saved under %q", step)
	}
	got, err := Extract(resp.Body, path)
	if err != nil {
		return "", err
	}
	return got.String(), nil
}
