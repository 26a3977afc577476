package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/rhino/internal/actor"
	"github.com/wesleyorama2/rhino/internal/assert"
	"github.com/wesleyorama2/rhino/internal/dsl"
	"github.com/wesleyorama2/rhino/internal/rate"
	"github.com/wesleyorama2/rhino/internal/runner"
	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
	"github.com/wesleyorama2/rhino/internal/transport"
)

// Compiled is a simulation file turned into engine inputs.
type Compiled struct {
	Name      string
	Workflows []*dsl.Node
	Runner    runner.Config
	Pool      *actor.StaticPool
	Client    transport.ClientConfig
	BaseURL   string
	Headers   map[string]string
	LogLevel  string
}

// NewTransport creates the HTTP client every pipeline of the run shares.
func (c *Compiled) NewTransport() *transport.Client {
	opts := []transport.ClientOption{transport.WithBaseURL(c.BaseURL)}
	for k, v := range c.Headers {
		opts = append(opts, transport.WithHeader(k, v))
	}
	return transport.NewClient(c.Client, opts...)
}

// Compile builds the workflow trees, actor pool and runner configuration
// described by f. f must have been validated. Schema violations found
// while running are logged to log at debug level.
func Compile(f *File, log zerolog.Logger) (*Compiled, error) {
	c := &compiler{log: log, vars: Vars(f.Settings.Variables)}

	out := &Compiled{
		Name:     f.Name,
		BaseURL:  f.Settings.BaseURL,
		Headers:  maps.Clone(f.Settings.Headers),
		LogLevel: f.Settings.LogLevel,
	}

	for _, wf := range f.Workflows {
		b, err := c.group(wf.Name, wf.Steps, c.vars)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", wf.Name, err)
		}
		node, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", wf.Name, err)
		}
		out.Workflows = append(out.Workflows, node)
	}

	pool, err := newPool(f.Actors)
	if err != nil {
		return nil, err
	}
	out.Pool = pool

	client := transport.DefaultClientConfig()
	client.Timeout = f.Settings.Timeout.Or(client.Timeout)
	client.InsecureSkipVerify = f.Settings.InsecureSkipVerify
	if n := f.Settings.MaxConnectionsPerHost; n > 0 {
		client.MaxConnsPerHost = n
	}
	if n := f.Settings.MaxIdleConnsPerHost; n > 0 {
		client.MaxIdleConnsPerHost = n
	}
	out.Client = client

	rc, err := runnerConfig(f, len(pool.Actors()))
	if err != nil {
		return nil, err
	}
	out.Runner = rc
	return out, nil
}

func newPool(cfg Actors) (*actor.StaticPool, error) {
	list := make([]actor.Actor, 0, len(cfg.List)+cfg.Anonymous)
	for _, a := range cfg.List {
		list = append(list, actor.Actor{ID: a.ID, Username: a.Username, Password: a.Password, Token: a.Token})
	}
	for range cfg.Anonymous {
		list = append(list, actor.Actor{})
	}
	return actor.NewStaticPool(list)
}

func runnerConfig(f *File, actors int) (runner.Config, error) {
	sim := f.Simulation
	drain, ok := runner.ParseDrainMode(sim.Drain)
	if !ok {
		return runner.Config{}, simerr.Invalid("simulation", "drain", "unknown mode "+sim.Drain)
	}

	rc := runner.Config{
		Name:              f.Name,
		Actors:            actors,
		Parallelism:       sim.Parallelism,
		Duration:          sim.Duration.Std(),
		MaxExecutions:     sim.MaxExecutions,
		ActorPollInterval: sim.ActorPollInterval.Std(),
		ActorPollAttempts: sim.ActorPollAttempts,
		Drain:             drain,
		GracefulStop:      sim.GracefulStop.Std(),
	}
	if r := sim.RampUp; r != nil {
		rc.Ramp = &rate.RampSpec{StartRPS: r.StartRPS, TargetRPS: r.TargetRPS, Duration: r.Duration.Std()}
	}
	if t := sim.Throttle; t != nil {
		rc.Throttle = &rate.ThrottleSpec{RPS: t.RPS, Window: t.Window.Or(defaultThrottleWindow)}
	}
	return rc, nil
}

type compiler struct {
	log  zerolog.Logger
	vars Vars
}

// group compiles steps into one sequential container.
func (c *compiler) group(name string, steps []Step, vars Vars) (dsl.Builder, error) {
	w := dsl.Workflow(name)
	for i := range steps {
		builders, err := c.step(&steps[i], vars)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		for _, b := range builders {
			w.Run(b)
		}
	}
	return w, nil
}

func (c *compiler) step(st *Step, vars Vars) ([]dsl.Builder, error) {
	switch {
	case st.HTTP != nil:
		return c.http(st.HTTP, vars)

	case st.Wait != nil:
		return []dsl.Builder{dsl.Wait(st.Wait.Std())}, nil

	case st.Session != nil:
		key, value := st.Session.Key, st.Session.Value
		if raw, ok := value.(string); ok {
			tpl := NewTemplate(raw, vars)
			return []dsl.Builder{dsl.Session(key, func(s *session.Session) any { return tpl.Render(s) })}, nil
		}
		return []dsl.Builder{dsl.SessionValue(key, value)}, nil

	case st.Ensure != nil:
		pred, reason, err := c.ensure(st.Ensure)
		if err != nil {
			return nil, err
		}
		return []dsl.Builder{dsl.Ensure(pred, reason)}, nil

	case st.Measure != nil:
		g, err := c.group(st.Measure.Tag, st.Measure.Steps, vars)
		if err != nil {
			return nil, err
		}
		return []dsl.Builder{dsl.Measure(st.Measure.Tag, g)}, nil

	case st.Repeat != nil:
		g, err := c.group("repeat", st.Repeat.Steps, vars)
		if err != nil {
			return nil, err
		}
		return []dsl.Builder{dsl.Repeat(st.Repeat.Times, g)}, nil

	case st.ForEach != nil:
		b, err := c.forEach(st.ForEach, vars)
		if err != nil {
			return nil, err
		}
		return []dsl.Builder{b}, nil
	}
	return nil, simerr.Invalid("step", "", "no step kind set")
}

func (c *compiler) http(h *HTTPStep, vars Vars) ([]dsl.Builder, error) {
	b := dsl.HTTP(h.Name).Method(h.Method)

	endpoint := NewTemplate(h.URL, vars)
	b.Endpoint(func(s *session.Session) (string, error) { return endpoint.Render(s), nil })

	for _, name := range slices.Sorted(maps.Keys(h.Headers)) {
		b.HeaderFunc(name, NewTemplate(h.Headers[name], vars).Render)
	}
	for _, name := range slices.Sorted(maps.Keys(h.Query)) {
		b.QueryParamFunc(name, NewTemplate(h.Query[name], vars).Render)
	}
	for _, name := range slices.Sorted(maps.Keys(h.Form)) {
		b.FormParamFunc(name, NewTemplate(h.Form[name], vars).Render)
	}
	if h.Body != "" {
		body := NewTemplate(h.Body, vars)
		b.Upload(func(s *session.Session) ([]byte, error) { return []byte(body.Render(s)), nil })
	}
	if h.Auth {
		b.Auth()
	}
	if r := h.Retry; r != nil {
		statuses := slices.Clone(r.Statuses)
		b.RetryIf(func(resp *transport.Response) bool {
			return slices.Contains(statuses, resp.StatusCode)
		}, r.Max)
		if h.Cumulative {
			b.Cumulative()
		}
	}

	scope, err := parseScope(h.Name, h.Scope)
	if err != nil {
		return nil, err
	}
	b.SaveTo(h.SaveTo, scope)

	out := []dsl.Builder{b}
	for _, name := range slices.Sorted(maps.Keys(h.Extract)) {
		out = append(out, extract(h.SaveTo, name, h.Extract[name]))
	}
	return out, nil
}

// extract saves the value at path in the response saved under step. JSON
// arrays and objects are kept as []any and map[string]any so a forEach can
// iterate over them.
func extract(step, name, path string) dsl.Builder {
	return dsl.Some("extract:"+name, func(s *session.Session) (any, error) {
		resp, ok := assert.Response(s, step)
		if !ok {
			return nil, fmt.Errorf("no response saved under %q", step)
		}
		got, err := assert.Extract(resp.Body, path)
		if err != nil {
			return nil, err
		}
		return got.Value(), nil
	}).SaveTo(name)
}

func (c *compiler) ensure(e *EnsureStep) (dsl.Predicate, string, error) {
	switch {
	case e.Status != nil:
		codes := e.Status.In
		if e.Status.Equals != 0 {
			codes = append([]int{e.Status.Equals}, codes...)
		}
		return assert.Status(e.Status.Step, codes...), reasonOr(e.Reason, fmt.Sprintf("status of %s not in %v", e.Status.Step, codes)), nil

	case e.JSONPath != nil:
		j := e.JSONPath
		if j.Equals == nil {
			return assert.Exists(j.Step, j.Path), reasonOr(e.Reason, fmt.Sprintf("%s: %s not found", j.Step, j.Path)), nil
		}
		return assert.JSONPath(j.Step, j.Path, j.Equals), reasonOr(e.Reason, fmt.Sprintf("%s: %s != %v", j.Step, j.Path, j.Equals)), nil

	case e.Schema != nil:
		raw, err := json.Marshal(e.Schema.Schema)
		if err != nil {
			return nil, "", fmt.Errorf("ensure schema of %s: %w", e.Schema.Step, err)
		}
		pred, err := assert.Schema(e.Schema.Step, raw, c.log)
		if err != nil {
			return nil, "", simerr.Invalid("ensure", "schema", err.Error())
		}
		return pred, reasonOr(e.Reason, e.Schema.Step+": body does not match schema"), nil
	}
	return nil, "", simerr.Invalid("ensure", "", "no check set")
}

func (c *compiler) forEach(fe *ForEachStep, vars Vars) (dsl.Builder, error) {
	iterable := dsl.FromSession[any](fe.From)
	if fe.From == "" {
		iterable = dsl.Items(fe.Items...)
	}

	// Surface definition errors of the body now rather than per element.
	probe, err := c.group(fe.Name, fe.Steps, vars.with(fe.As, ""))
	if err != nil {
		return nil, fmt.Errorf("forEach %s: %w", fe.Name, err)
	}
	if _, err := probe.Build(); err != nil {
		return nil, fmt.Errorf("forEach %s: %w", fe.Name, err)
	}

	b := dsl.ForEach(fe.Name, iterable).Exec(func(elem any) dsl.Builder {
		g, err := c.group(fe.Name, fe.Steps, vars.with(fe.As, elem))
		if err != nil {
			return failing{err}
		}
		return g
	})
	if fe.SaveTo != "" {
		scope, err := parseScope(fe.Name, fe.Scope)
		if err != nil {
			return nil, err
		}
		b.SaveTo(fe.SaveTo, scope)
	}
	return b, nil
}

type failing struct{ err error }

func (f failing) Build() (*dsl.Node, error) { return nil, f.err }

func parseScope(node, name string) (session.Scope, error) {
	scope, ok := session.ParseScope(name)
	if !ok {
		return scope, simerr.Invalid(node, "scope", "unknown scope "+name)
	}
	return scope, nil
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
