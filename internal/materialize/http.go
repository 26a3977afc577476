package materialize

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wesleyorama2/rhino/internal/actor"
	"github.com/wesleyorama2/rhino/internal/dsl"
	"github.com/wesleyorama2/rhino/internal/events"
	"github.com/wesleyorama2/rhino/internal/retry"
	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
	"github.com/wesleyorama2/rhino/internal/transport"
)

// http issues the node's request and saves an HTTPResult.
//
// Without retry configuration any failure (resolving the request or the
// transport call) is logged and drops the branch, unless ctx is done: a
// cancelled request is returned as the context error. With retry configuration
// retriable responses are re-issued immediately; exhaustion and transport
// errors end the pairing. In cumulative mode a single start/end pair spans
// every attempt; otherwise each attempt reports its own pair.
func (m *Materializer) http(n *dsl.Node, f frame) Step {
	spec := n.HTTP()

	return func(ctx context.Context, s *session.Session) (*session.Session, error) {
		req, owner, err := buildRequest(spec, s)
		if err != nil {
			if spec.Retry != nil {
				return s, fmt.Errorf("%s: %w", n.Name(), err)
			}
			return s, m.drop(n, s, err)
		}

		if spec.Retry == nil {
			resp, err := m.attempt(ctx, n, f, s, req, 1, true)
			if err != nil {
				if ctx.Err() != nil {
					return s, ctx.Err()
				}
				return s, m.drop(n, s, err)
			}
			record(f, n, owner, dsl.HTTPResult{Endpoint: req.URL, Response: resp})
			return s, nil
		}

		resp, err := m.withRetry(ctx, n, f, s, req)
		if err != nil {
			m.log.Warn().Err(err).Str("step", n.Name()).Str("actor", s.Actor().ID).Msg("request failed")
			return s, fmt.Errorf("%s: %w", n.Name(), err)
		}
		record(f, n, owner, dsl.HTTPResult{Endpoint: req.URL, Response: resp})
		return s, nil
	}
}

func (m *Materializer) withRetry(ctx context.Context, n *dsl.Node, f frame, s *session.Session, req *transport.Request) (*transport.Response, error) {
	spec := n.HTTP()
	cumulative := spec.Cumulative

	policy := retry.Policy[*transport.Response]{
		Retriable: spec.Retry.Retriable,
		Retries:   spec.Retry.Retries,
		Cause: func(r *transport.Response) error {
			return fmt.Errorf("%w %d", simerr.ErrUnexpectedStatus, r.StatusCode)
		},
	}
	op := func(ctx context.Context, attempt int) (*transport.Response, error) {
		return m.attempt(ctx, n, f, s, req, attempt, !cumulative)
	}
	onRetry := retry.OnRetry(func(attempt int, cause error) {
		m.log.Debug().Str("step", n.Name()).Str("actor", s.Actor().ID).Int("attempt", attempt).AnErr("cause", cause).Msg("retrying request")
	})

	if !cumulative {
		return retry.Do(ctx, policy, op, onRetry)
	}

	base := m.requestEvent(n, f, s)
	start := m.now()
	startEvent := base
	startEvent.Type = events.TypeStart
	startEvent.Start = start
	m.dispatcher.Dispatch(startEvent)

	resp, err := retry.Do(ctx, policy, op, onRetry)

	base.Status, base.Code = status(resp, err)
	base.Failed = err != nil || !resp.IsSuccess()
	_, end := events.Pair(base, start, m.now())
	m.dispatcher.Dispatch(end)

	return resp, err
}

// attempt performs one transport call, reporting it when emit is set.
func (m *Materializer) attempt(ctx context.Context, n *dsl.Node, f frame, s *session.Session, req *transport.Request, attempt int, emit bool) (*transport.Response, error) {
	base := m.requestEvent(n, f, s)
	base.Attempt = attempt

	start := m.now()
	if emit {
		startEvent := base
		startEvent.Type = events.TypeStart
		startEvent.Start = start
		m.dispatcher.Dispatch(startEvent)
	}

	resp, err := m.transport.Execute(ctx, req)

	if emit {
		base.Status, base.Code = status(resp, err)
		base.Failed = err != nil || !resp.IsSuccess()
		_, end := events.Pair(base, start, m.now())
		m.dispatcher.Dispatch(end)
	}
	return resp, err
}

func (m *Materializer) requestEvent(n *dsl.Node, f frame, s *session.Session) events.Event {
	return events.Event{
		Kind:     events.KindRequest,
		RunID:    m.runID,
		Scenario: n.Name(),
		Step:     f.workflow,
		Tag:      f.measure,
		ActorID:  s.Actor().ID,
	}
}

func (m *Materializer) drop(n *dsl.Node, s *session.Session, err error) error {
	m.log.Warn().Err(err).Str("step", n.Name()).Str("actor", s.Actor().ID).Msg("request failed, dropping branch")
	return &simerr.BranchDroppedError{Node: n.Name(), Cause: err}
}

func status(resp *transport.Response, err error) (string, int) {
	if resp == nil {
		return events.StatusError, 0
	}
	if err != nil && resp.StatusCode == 0 {
		return events.StatusError, 0
	}
	return strconv.Itoa(resp.StatusCode), resp.StatusCode
}

// buildRequest resolves the node's request against s. It also returns the
// session view results are saved through: for AuthAs nodes the selected
// actor owns the shared scope.
func buildRequest(spec *dsl.HTTPSpec, s *session.Session) (*transport.Request, *session.Session, error) {
	endpoint, err := spec.Endpoint(s)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve endpoint: %w", err)
	}

	req := transport.NewRequest(spec.Method, endpoint)
	for _, p := range spec.Headers {
		req.Header.Add(p.Name, p.Value(s))
	}
	for _, p := range spec.Query {
		req.Query.Add(p.Name, p.Value(s))
	}
	for _, p := range spec.Form {
		req.Form.Add(p.Name, p.Value(s))
	}
	if spec.Upload != nil {
		body, err := spec.Upload(s)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve upload: %w", err)
		}
		req.Body = body
	}

	owner := s
	switch spec.Auth {
	case dsl.AuthActor:
		authenticate(req, s.Actor())
	case dsl.AuthSelected:
		a, err := spec.AuthAs(s)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve actor: %w", err)
		}
		authenticate(req, a)
		owner = s.WithOwner(a.ID)
	}

	return req, owner, nil
}

func authenticate(req *transport.Request, a actor.Actor) {
	switch {
	case a.HasToken():
		req.BearerToken = a.Token
	case a.HasCredentials():
		req.Username, req.Password = a.Username, a.Password
	}
}
