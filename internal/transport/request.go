// Package transport executes the network requests issued by workflow steps.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is a transport-neutral description of one HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Query  url.Values
	Form   url.Values
	Body   []byte

	// Basic auth credentials, ignored when BearerToken is set.
	Username string
	Password string

	BearerToken string
}

// NewRequest creates a request with empty header, query and form sets.
func NewRequest(method, rawURL string) *Request {
	return &Request{
		Method: method,
		URL:    rawURL,
		Header: make(http.Header),
		Query:  make(url.Values),
		Form:   make(url.Values),
	}
}

// ResolveURL joins the request URL with baseURL when the URL is relative.
func (r *Request) ResolveURL(baseURL string) string {
	if baseURL == "" || strings.Contains(r.URL, "://") {
		return r.URL
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(r.URL, "/")
}

// Build converts the request into an *http.Request.
func (r *Request) Build(baseURL string) (*http.Request, error) {
	u, err := url.Parse(r.ResolveURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", r.URL, err)
	}

	if len(r.Query) > 0 {
		q := u.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	switch {
	case len(r.Body) > 0:
		body = bytes.NewReader(r.Body)
	case len(r.Form) > 0:
		body = strings.NewReader(r.Form.Encode())
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if len(r.Body) == 0 && len(r.Form) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	switch {
	case r.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+r.BearerToken)
	case r.Username != "":
		req.SetBasicAuth(r.Username, r.Password)
	}

	return req, nil
}
