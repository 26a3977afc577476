package dsl

import (
	"net/http"

	"github.com/wesleyorama2/rhino/internal/actor"
	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
	"github.com/wesleyorama2/rhino/internal/transport"
)

// AuthMode selects how an HTTP node authenticates.
type AuthMode int

const (
	AuthNone AuthMode = iota
	// AuthActor authenticates as the actor running the pipeline.
	AuthActor
	// AuthSelected authenticates as an actor picked from the session.
	AuthSelected
)

// Param is a named value resolved against the session when the request is
// built.
type Param struct {
	Name  string
	Value func(s *session.Session) string
}

// RetrySpec makes an HTTP node retry responses the predicate classifies as
// retriable, up to Retries additional attempts.
type RetrySpec struct {
	Retriable func(*transport.Response) bool
	Retries   int
}

// HTTPSpec describes the request an HTTP node issues.
type HTTPSpec struct {
	Method     string
	Endpoint   func(s *session.Session) (string, error)
	Headers    []Param
	Query      []Param
	Form       []Param
	Auth       AuthMode
	AuthAs     func(s *session.Session) (actor.Actor, error)
	Upload     func(s *session.Session) ([]byte, error)
	Retry      *RetrySpec
	Cumulative bool
}

// HTTPResult is what an HTTP node saves into the session.
type HTTPResult struct {
	Endpoint string
	Response *transport.Response
}

// HTTPBuilder builds HTTP nodes.
type HTTPBuilder struct {
	name   string
	spec   HTTPSpec
	saveTo string
	scope  session.Scope
	err    error
}

// HTTP starts a request step named name. The name is the scenario label of
// its timing events.
func HTTP(name string) *HTTPBuilder {
	return &HTTPBuilder{name: name, spec: HTTPSpec{Method: http.MethodGet}}
}

func (h *HTTPBuilder) Get() *HTTPBuilder { return h.Method(http.MethodGet) }
func (h *HTTPBuilder) Post() *HTTPBuilder { return h.Method(http.MethodPost) }
func (h *HTTPBuilder) Put() *HTTPBuilder { return h.Method(http.MethodPut) }
func (h *HTTPBuilder) Patch() *HTTPBuilder { return h.Method(http.MethodPatch) }
func (h *HTTPBuilder) Delete() *HTTPBuilder { return h.Method(http.MethodDelete) }
func (h *HTTPBuilder) Head() *HTTPBuilder { return h.Method(http.MethodHead) }
func (h *HTTPBuilder) Options() *HTTPBuilder { return h.Method(http.MethodOptions) }

// Method sets an arbitrary HTTP method.
func (h *HTTPBuilder) Method(m string) *HTTPBuilder {
	h.spec.Method = m
	return h
}

// Endpoint sets the URL resolver. Relative URLs are joined with the run's
// base URL.
func (h *HTTPBuilder) Endpoint(fn func(s *session.Session) (string, error)) *HTTPBuilder {
	h.spec.Endpoint = fn
	return h
}

// URL sets a constant endpoint.
func (h *HTTPBuilder) URL(u string) *HTTPBuilder {
	return h.Endpoint(func(*session.Session) (string, error) { return u, nil })
}

// Header adds a header with a constant value.
func (h *HTTPBuilder) Header(name, value string) *HTTPBuilder {
	return h.HeaderFunc(name, constant(value))
}

// HeaderFunc adds a header resolved from the session.
func (h *HTTPBuilder) HeaderFunc(name string, fn func(s *session.Session) string) *HTTPBuilder {
	h.spec.Headers = h.param(h.spec.Headers, "header", name, fn)
	return h
}

// QueryParam adds a query parameter.
func (h *HTTPBuilder) QueryParam(name, value string) *HTTPBuilder {
	return h.QueryParamFunc(name, constant(value))
}

// QueryParamFunc adds a query parameter resolved from the session.
func (h *HTTPBuilder) QueryParamFunc(name string, fn func(s *session.Session) string) *HTTPBuilder {
	h.spec.Query = h.param(h.spec.Query, "queryParam", name, fn)
	return h
}

// FormParam adds a form field.
func (h *HTTPBuilder) FormParam(name, value string) *HTTPBuilder {
	return h.FormParamFunc(name, constant(value))
}

// FormParamFunc adds a form field resolved from the session.
func (h *HTTPBuilder) FormParamFunc(name string, fn func(s *session.Session) string) *HTTPBuilder {
	h.spec.Form = h.param(h.spec.Form, "formParam", name, fn)
	return h
}

// Auth authenticates as the pipeline's actor.
func (h *HTTPBuilder) Auth() *HTTPBuilder {
	h.spec.Auth = AuthActor
	return h
}

// AuthAs authenticates as the actor returned by fn. That actor also owns
// the shared scope the node writes to.
func (h *HTTPBuilder) AuthAs(fn func(s *session.Session) (actor.Actor, error)) *HTTPBuilder {
	if fn == nil {
		h.fail("authAs", "must not be nil")
		return h
	}
	h.spec.Auth = AuthSelected
	h.spec.AuthAs = fn
	return h
}

// Upload sets the raw request body supplier.
func (h *HTTPBuilder) Upload(fn func(s *session.Session) ([]byte, error)) *HTTPBuilder {
	if fn == nil {
		h.fail("upload", "must not be nil")
		return h
	}
	h.spec.Upload = fn
	return h
}

// Body sets a constant request body.
func (h *HTTPBuilder) Body(b []byte) *HTTPBuilder {
	body := append([]byte(nil), b...)
	return h.Upload(func(*session.Session) ([]byte, error) { return body, nil })
}

// RetryIf retries responses matching pred up to n more times.
func (h *HTTPBuilder) RetryIf(pred func(*transport.Response) bool, n int) *HTTPBuilder {
	h.spec.Retry = &RetrySpec{Retriable: pred, Retries: n}
	return h
}

// Cumulative measures all attempts as one interval.
func (h *HTTPBuilder) Cumulative() *HTTPBuilder {
	h.spec.Cumulative = true
	return h
}

// SaveTo stores the HTTPResult under key in the given scope.
func (h *HTTPBuilder) SaveTo(key string, scope ...session.Scope) *HTTPBuilder {
	h.saveTo = key
	h.scope = scopeOf(scope)
	return h
}

func (h *HTTPBuilder) Build() (*Node, error) {
	if h.err != nil {
		return nil, h.err
	}
	if h.name == "" {
		return nil, simerr.Invalid("http", "name", "must not be empty")
	}
	if h.spec.Endpoint == nil {
		return nil, simerr.Invalid(h.name, "endpoint", "must not be nil")
	}
	if h.spec.Method == "" {
		return nil, simerr.Invalid(h.name, "method", "must not be empty")
	}
	if r := h.spec.Retry; r != nil {
		if r.Retriable == nil {
			return nil, simerr.Invalid(h.name, "retryIf", "predicate must not be nil")
		}
		if r.Retries < 0 {
			return nil, simerr.Invalid(h.name, "retryIf", "retry count must not be negative")
		}
	}
	if h.spec.Cumulative && h.spec.Retry == nil {
		return nil, simerr.Invalid(h.name, "cumulative", "requires retryIf")
	}

	spec := h.spec
	spec.Headers = append([]Param(nil), h.spec.Headers...)
	spec.Query = append([]Param(nil), h.spec.Query...)
	spec.Form = append([]Param(nil), h.spec.Form...)
	if h.spec.Retry != nil {
		r := *h.spec.Retry
		spec.Retry = &r
	}

	return &Node{kind: KindHTTP, name: h.name, saveTo: h.saveTo, scope: h.scope, http: &spec}, nil
}

func (h *HTTPBuilder) param(list []Param, field, name string, fn func(*session.Session) string) []Param {
	switch {
	case name == "":
		h.fail(field, "name must not be empty")
	case fn == nil:
		h.fail(field, "value must not be nil")
	default:
		list = append(list, Param{Name: name, Value: fn})
	}
	return list
}

func (h *HTTPBuilder) fail(field, msg string) {
	if h.err == nil {
		h.err = simerr.Invalid(h.name, field, msg)
	}
}

func constant(v string) func(*session.Session) string {
	return func(*session.Session) string { return v }
}
