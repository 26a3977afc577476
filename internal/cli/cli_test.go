package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/rhino/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func target(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func simulation(baseURL, extra string) string {
	return `
name: smoke
settings:
  baseUrl: ` + baseURL + `
  logLevel: disabled
simulation:
  maxExecutions: 4
actors:
  anonymous: 2
workflows:
  - name: browse
    steps:
      - http:
          name: home
          url: /
` + extra + `
      - ensure:
          jsonPath: {step: home, path: $.id, equals: "42"}
`
}

func TestRun_JSONReport(t *testing.T) {
	srv, hits := target(t, http.StatusOK)
	path := writeConfig(t, simulation(srv.URL, ""))

	out, err := execute(t, "run", "-c", path, "--json")
	require.NoError(t, err)

	var report struct {
		Result struct {
			Executions int64  `json:"executions"`
			Completed  int64  `json:"completed"`
			Reason     string `json:"reason"`
		} `json:"result"`
		Metrics struct {
			TotalRequests int64            `json:"totalRequests"`
			Pairings      map[string]int64 `json:"pairings"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report), out)

	assert.EqualValues(t, 4, report.Result.Executions)
	assert.EqualValues(t, 4, report.Result.Completed)
	assert.Equal(t, "completed", report.Result.Reason)
	assert.EqualValues(t, 4, report.Metrics.TotalRequests)
	assert.EqualValues(t, 4, report.Metrics.Pairings["completed"])
	assert.EqualValues(t, 4, hits.Load())
}

func TestRun_Summary(t *testing.T) {
	srv, _ := target(t, http.StatusOK)
	path := writeConfig(t, simulation(srv.URL, ""))

	out, err := execute(t, "run", "-c", path, "--progress", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "smoke - Running")
	assert.Contains(t, out, "smoke - PASSED (completed)")
	assert.Contains(t, out, "Completed:   4 (100.0%)")
}

func TestRun_ExhaustedRetriesFail(t *testing.T) {
	srv, hits := target(t, http.StatusServiceUnavailable)
	retry := `          retry: {statuses: [503], max: 2}`
	path := writeConfig(t, simulation(srv.URL, retry))

	out, err := execute(t, "run", "-c", path, "-q", "--executions", "1")
	require.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, "FAILED\n", out)
	assert.EqualValues(t, 3, hits.Load())
}

func TestRun_TerminatedStillPasses(t *testing.T) {
	srv, _ := target(t, http.StatusOK)
	body := strings.Replace(simulation(srv.URL, ""), `equals: "42"`, `equals: "43"`, 1)
	path := writeConfig(t, body)

	out, err := execute(t, "run", "-c", path, "-q")
	require.NoError(t, err)
	assert.Equal(t, "PASSED\n", out)
}

func TestRun_MetricsServer(t *testing.T) {
	srv, _ := target(t, http.StatusOK)
	path := writeConfig(t, simulation(srv.URL, ""))

	_, err := execute(t, "run", "-c", path, "-q", "--metrics-addr", "127.0.0.1:0")
	assert.NoError(t, err)
}

func TestRun_Errors(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err, "missing --config")

	_, err = execute(t, "run", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, simulation("http://127.0.0.1:1", ""))
	_, err = execute(t, "run", "-c", path, "--log-level", "chatty")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, simulation("http://localhost", ""))
	out, err := execute(t, "validate", "-c", path)
	require.NoError(t, err)
	assert.Equal(t, "smoke: 1 workflow(s), 2 actor(s) - OK\n", out)

	bad := writeConfig(t, "name: broken\nworkflows: []\n")
	_, err = execute(t, "validate", "-c", bad)
	var verrs *config.ValidationErrors
	require.True(t, errors.As(err, &verrs), "got %v", err)
	assert.Contains(t, verrs.Fields(), "workflows")
}

func TestRoot_Version(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}

func TestRun_HTMLReport(t *testing.T) {
	srv, _ := target(t, http.StatusOK)
	path := writeConfig(t, simulation(srv.URL, ""))
	htmlPath := filepath.Join(t.TempDir(), "report.html")

	_, err := execute(t, "run", "-c", path, "-q", "--html", htmlPath)
	require.NoError(t, err)

	body, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<title>smoke - rhino report</title>")
	assert.Contains(t, string(body), `class="PASSED"`)
	assert.Contains(t, string(body), "<td>home</td>")
}
