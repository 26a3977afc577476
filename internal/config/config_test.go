package config

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/rhino/internal/actor"
	"github.com/wesleyorama2/rhino/internal/materialize"
	"github.com/wesleyorama2/rhino/internal/runner"
	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
	"github.com/wesleyorama2/rhino/internal/transport"
)

const sampleYAML = `
name: checkout
settings:
  baseUrl: http://localhost:8080
  timeout: 5s
  variables:
    tenant: acme
simulation:
  duration: 1m
  maxExecutions: 100
  throttle:
    rps: 20
actors:
  anonymous: 3
  list:
    - username: alice
      password: secret
    - id: bob
      token: t0k3n
workflows:
  - name: browse
    steps:
      - http:
          name: home
          method: get
          url: /{{tenant}}/home
      - ensure:
          status: {step: home, equals: 200}
      - wait: 100ms
      - repeat:
          times: 2
          steps:
            - session: {key: seen, value: true}
`

func TestParse_YAMLDefaults(t *testing.T) {
	f, err := Parse([]byte(sampleYAML), "sim.yaml")
	require.NoError(t, err)

	assert.Equal(t, "checkout", f.Name)
	assert.Equal(t, 5*time.Second, f.Settings.Timeout.Std())
	assert.Equal(t, "info", f.Settings.LogLevel)
	assert.Equal(t, "graceful", f.Simulation.Drain)
	assert.Equal(t, time.Second, f.Simulation.Throttle.Window.Std())

	home := f.Workflows[0].Steps[0].HTTP
	assert.Equal(t, "GET", home.Method)
	assert.Equal(t, "home", home.SaveTo)
	assert.Equal(t, 100*time.Millisecond, f.Workflows[0].Steps[2].Wait.Std())
}

func TestParse_JSON(t *testing.T) {
	data := `{
		"name": "api",
		"simulation": {"duration": "30s", "gracefulStop": 5000000000},
		"actors": {"anonymous": 1},
		"workflows": [{"name": "w", "steps": [{"http": {"name": "ping", "url": "/ping"}}]}]
	}`

	f, err := Parse([]byte(data), "sim.json")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, f.Simulation.Duration.Std())
	assert.Equal(t, 5*time.Second, f.Simulation.GracefulStop.Std())
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("name: x\nbogus: 1\n"), "sim.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Workflows, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "missing name",
			yaml:  "simulation: {duration: 1s}\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{wait: 1s}]}]",
			field: "name",
		},
		{
			name:  "no workflows",
			yaml:  "name: x\nsimulation: {duration: 1s}\nactors: {anonymous: 1}",
			field: "workflows",
		},
		{
			name:  "no actors",
			yaml:  "name: x\nsimulation: {duration: 1s}\nworkflows: [{name: w, steps: [{wait: 1s}]}]",
			field: "actors",
		},
		{
			name:  "unbounded run",
			yaml:  "name: x\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{wait: 1s}]}]",
			field: "simulation",
		},
		{
			name:  "bad drain mode",
			yaml:  "name: x\nsimulation: {duration: 1s, drain: later}\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{wait: 1s}]}]",
			field: "simulation.drain",
		},
		{
			name:  "two step kinds",
			yaml:  "name: x\nsimulation: {duration: 1s}\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{wait: 1s, session: {key: k, value: 1}}]}]",
			field: "workflows[0].steps[0]",
		},
		{
			name:  "ensure without check",
			yaml:  "name: x\nsimulation: {duration: 1s}\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{ensure: {reason: r}}]}]",
			field: "workflows[0].steps[0].ensure",
		},
		{
			name:  "forEach items and from",
			yaml:  "name: x\nsimulation: {duration: 1s}\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{forEach: {name: f, items: [1], from: k, steps: [{wait: 1s}]}}]}]",
			field: "workflows[0].steps[0].forEach",
		},
		{
			name:  "cumulative without retry",
			yaml:  "name: x\nsimulation: {duration: 1s}\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{http: {name: h, url: /, cumulative: true}}]}]",
			field: "workflows[0].steps[0].http.cumulative",
		},
		{
			name:  "http without url",
			yaml:  "name: x\nsimulation: {duration: 1s}\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{http: {name: h}}]}]",
			field: "workflows[0].steps[0].http.url",
		},
		{
			name:  "non-positive wait",
			yaml:  "name: x\nsimulation: {duration: 1s}\nactors: {anonymous: 1}\nworkflows: [{name: w, steps: [{wait: 0s}]}]",
			field: "workflows[0].steps[0].wait",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "sim.yaml")
			require.Error(t, err)

			var verrs *ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			assert.Contains(t, verrs.Fields(), tt.field)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	assert.False(t, errs.HasErrors())

	errs.Add("name", "is required")
	assert.Equal(t, "validation error on field 'name': is required", errs.Error())

	errs.Add("", "boom")
	assert.True(t, strings.HasPrefix(errs.Error(), "2 validation errors:"))
}

func TestTemplate_Render(t *testing.T) {
	s := session.New(actor.Actor{ID: "a1", Username: "alice"}, session.NewRegistry())
	s.Add("cart", 42)
	s.Add("login", &transport.Response{StatusCode: 200, Body: []byte(`{"token":"abc","user":{"id":7}}`)})

	tests := []struct {
		raw  string
		want string
	}{
		{"/plain", "/plain"},
		{"/{{tenant}}/home", "/acme/home"},
		{"{{actor}}:{{ actor.username }}", "a1:alice"},
		{"Bearer {{login.token}}", "Bearer abc"},
		{"{{login.$.user.id}}", "7"},
		{"/carts/{{cart}}", "/carts/42"},
		{"{{nope}}", "{{nope}}"},
		{"{{login.missing}}", "{{login.missing}}"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			tpl := NewTemplate(tt.raw, Vars{"tenant": "acme"})
			assert.Equal(t, tt.want, tpl.Render(s))
		})
	}
}

func TestCompile_RunnerAndPool(t *testing.T) {
	f, err := Parse([]byte(sampleYAML), "sim.yaml")
	require.NoError(t, err)

	c, err := Compile(f, zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, c.Workflows, 1)
	assert.Equal(t, "browse", c.Workflows[0].Name())
	assert.Len(t, c.Pool.Actors(), 5)
	assert.Contains(t, c.Pool.Actors(), actor.Actor{ID: "alice", Username: "alice", Password: "secret"})

	assert.Equal(t, 5, c.Runner.Actors)
	assert.Equal(t, time.Minute, c.Runner.Duration)
	assert.EqualValues(t, 100, c.Runner.MaxExecutions)
	assert.Equal(t, runner.DrainGraceful, c.Runner.Drain)
	require.NotNil(t, c.Runner.Throttle)
	assert.Equal(t, 20, c.Runner.Throttle.RPS)
	assert.Equal(t, time.Second, c.Runner.Throttle.Window)
	assert.Equal(t, 5*time.Second, c.Client.Timeout)
}

func TestCompile_InvalidSchema(t *testing.T) {
	yaml := `
name: x
simulation: {duration: 1s}
actors: {anonymous: 1}
workflows:
  - name: w
    steps:
      - http: {name: h, url: /}
      - ensure:
          schema: {step: h, schema: {type: 5}}
`
	f, err := Parse([]byte(yaml), "sim.yaml")
	require.NoError(t, err)

	_, err = Compile(f, zerolog.Nop())
	require.Error(t, err)
	var invalid *simerr.InvalidDefinitionError
	assert.True(t, errors.As(err, &invalid))
}

func TestCompile_Workflow(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+" "+r.Header.Get("Authorization"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login":
			_ = r.ParseForm()
			if r.PostForm.Get("user") != "a1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"token":"abc","items":[1,2]}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	yaml := `
name: shop
settings:
  baseUrl: ` + srv.URL + `
simulation: {maxExecutions: 1}
actors: {anonymous: 1}
workflows:
  - name: buy
    steps:
      - http:
          name: login
          method: post
          url: /login
          form: {user: "{{actor}}"}
          extract: {items: $.items}
      - ensure:
          jsonPath: {step: login, path: $.token, equals: abc}
      - forEach:
          name: fetch
          from: items
          as: id
          saveTo: pages
          steps:
            - http:
                name: item
                url: /items/{{id}}
                headers: {Authorization: "Bearer {{login.token}}"}
`
	f, err := Parse([]byte(yaml), "sim.yaml")
	require.NoError(t, err)
	c, err := Compile(f, zerolog.Nop())
	require.NoError(t, err)

	m := materialize.New(c.NewTransport())
	s := session.New(actor.Actor{ID: "a1"}, session.NewRegistry())
	s, err = m.Run(context.Background(), c.Workflows[0], s)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"POST /login ",
		"GET /items/1 Bearer abc",
		"GET /items/2 Bearer abc",
	}, seen)

	pages, ok := s.Get("pages")
	require.True(t, ok)
	assert.Equal(t, 2, pages.(*session.List).Len())
}

func TestCompile_EnsureTerminates(t *testing.T) {
	yaml := `
name: x
simulation: {maxExecutions: 1}
actors: {anonymous: 1}
workflows:
  - name: w
    steps:
      - http: {name: h, url: http://example.test/}
      - ensure:
          status: {step: h, equals: 201}
      - session: {key: after, value: "{{actor}}"}
`
	f, err := Parse([]byte(yaml), "sim.yaml")
	require.NoError(t, err)
	c, err := Compile(f, zerolog.Nop())
	require.NoError(t, err)

	tr := transport.Func(func(context.Context, *transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: http.StatusOK}, nil
	})
	s := session.New(actor.Actor{ID: "a1"}, session.NewRegistry())
	s, err = materialize.New(tr).Run(context.Background(), c.Workflows[0], s)
	require.Error(t, err)
	assert.True(t, simerr.IsTermination(err))
	assert.Contains(t, err.Error(), "status of h not in [201]")

	_, ok := s.Get("after")
	assert.False(t, ok)
}

func TestCompile_SessionTemplate(t *testing.T) {
	f := &File{
		Name:       "x",
		Simulation: Simulation{MaxExecutions: 1},
		Actors:     Actors{Anonymous: 1},
		Settings:   Settings{Variables: map[string]string{"env": "prod"}},
		Workflows: []Workflow{{Name: "w", Steps: []Step{
			{Session: &SessionStep{Key: "greeting", Value: "{{env}}-{{actor}}"}},
			{Session: &SessionStep{Key: "count", Value: 3}},
		}}},
	}
	f.ApplyDefaults()
	require.NoError(t, f.Validate())

	c, err := Compile(f, zerolog.Nop())
	require.NoError(t, err)

	s := session.New(actor.Actor{ID: "a1"}, session.NewRegistry())
	s, err = materialize.New(transport.Func(nil)).Run(context.Background(), c.Workflows[0], s)
	require.NoError(t, err)

	got, _ := s.Get("greeting")
	assert.Equal(t, "prod-a1", got)
	count, _ := s.Get("count")
	assert.Equal(t, 3, count)
}
