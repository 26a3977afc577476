package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items" {
			t.Errorf("path = %s, want /items", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("query page = %q, want 2", got)
		}
		if got := r.Header.Get("X-Client"); got != "rhino" {
			t.Errorf("X-Client = %q, want rhino", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("Authorization = %q, want Bearer abc", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(), WithBaseURL(server.URL), WithHeader("X-Client", "rhino"))

	req := NewRequest(http.MethodGet, "/items")
	req.Query.Set("page", "2")
	req.BearerToken = "abc"

	resp, err := client.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if resp.String() != `{"ok":true}` {
		t.Errorf("Body = %q, want {\"ok\":true}", resp.String())
	}
	if !resp.IsSuccess() {
		t.Error("IsSuccess() = false, want true")
	}
	if resp.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", resp.Duration)
	}
}

func TestRequest_BuildForm(t *testing.T) {
	req := NewRequest(http.MethodPost, "http://example.com/login")
	req.Form.Set("user", "alice")
	req.Username = "alice"
	req.Password = "secret"

	httpReq, err := req.Build("")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if ct := httpReq.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q, want form encoding", ct)
	}
	body, _ := io.ReadAll(httpReq.Body)
	if string(body) != "user=alice" {
		t.Errorf("body = %q, want user=alice", body)
	}
	user, pass, ok := httpReq.BasicAuth()
	if !ok || user != "alice" || pass != "secret" {
		t.Errorf("BasicAuth() = %q, %q, %v, want alice, secret, true", user, pass, ok)
	}
}

func TestRequest_ResolveURL(t *testing.T) {
	tests := []struct {
		base, url, want string
	}{
		{"http://h:1", "/a", "http://h:1/a"},
		{"http://h:1/", "a", "http://h:1/a"},
		{"http://h:1", "https://other/b", "https://other/b"},
		{"", "/a", "/a"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			r := NewRequest(http.MethodGet, tt.url)
			if got := r.ResolveURL(tt.base); got != tt.want {
				t.Errorf("ResolveURL(%q) = %q, want %q", tt.base, got, tt.want)
			}
		})
	}
}

func TestClient_ExecuteError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(DefaultClientConfig())
	if _, err := client.Execute(context.Background(), NewRequest(http.MethodGet, url)); err == nil {
		t.Error("Execute() against closed server error = nil, want error")
	}
}
