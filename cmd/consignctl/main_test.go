package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	ReqID  string
	Body   map[string]any
}

func newAPI(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			ReqID:  r.Header.Get("X-Request-Id"),
		}
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &req.Body)
		}
		captured = append(captured, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func runCLI(t *testing.T, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("API_BASE_URL", srv.URL+"/api")
	t.Setenv("CONSIGNCTL_TOKEN", "tok")
	var out bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(stdin), &out)
	return out.String(), err
}

func TestSubmitFromStdin(t *testing.T) {
	srv, captured := newAPI(t, http.StatusCreated, `{"id":"CSG-1","status":"pending"}`)

	out, err := runCLI(t, srv, `{"brand":"Toyota","dailyRate":"300"}`, "submit")
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/consignments", req.Path)
	assert.Equal(t, "Bearer tok", req.Auth)
	assert.NotEmpty(t, req.ReqID)
	assert.Equal(t, "Toyota", req.Body["brand"])
	assert.Contains(t, out, `"id": "CSG-1"`)
}

func TestSubmitFromFile(t *testing.T) {
	srv, captured := newAPI(t, http.StatusCreated, `{"id":"CSG-2","status":"pending"}`)
	path := filepath.Join(t.TempDir(), "car.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"brand":"Honda"}`), 0o600))

	_, err := runCLI(t, srv, "", "submit", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "Honda", (*captured)[0].Body["brand"])
}

func TestSubmitRejectsInvalidJSON(t *testing.T) {
	srv, captured := newAPI(t, http.StatusCreated, `{}`)

	_, err := runCLI(t, srv, "not json", "submit")
	assert.Error(t, err)
	assert.Empty(t, *captured)
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name string
		args []string
		body map[string]any
	}{
		{"approve", []string{"approve", "CSG-1", "--notes", "ok"}, map[string]any{"status": "approved", "admin_notes": "ok"}},
		{"reject", []string{"reject", "CSG-1", "--reason", "salvage"}, map[string]any{"status": "rejected", "rejection_reason": "salvage"}},
		{"complete", []string{"complete", "CSG-1"}, map[string]any{"status": "completed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, captured := newAPI(t, http.StatusOK, `{"id":"CSG-1"}`)
			_, err := runCLI(t, srv, "", tt.args...)
			require.NoError(t, err)

			req := (*captured)[0]
			assert.Equal(t, http.MethodPatch, req.Method)
			assert.Equal(t, "/api/consignments/CSG-1", req.Path)
			assert.Equal(t, tt.body, req.Body)
		})
	}
}

func TestPromote(t *testing.T) {
	srv, captured := newAPI(t, http.StatusOK, `{"id":"v1","plate":"CSG-1"}`)

	_, err := runCLI(t, srv, "", "promote", "CSG-1")
	require.NoError(t, err)
	req := (*captured)[0]
	assert.Equal(t, "/api/vehicles/create-from-consignment", req.Path)
	assert.Equal(t, "CSG-1", req.Body["consignmentId"])
}

func TestListQuery(t *testing.T) {
	srv, captured := newAPI(t, http.StatusOK, `[]`)

	_, err := runCLI(t, srv, "", "list", "--status", "approved", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, "status=approved&limit=5", (*captured)[0].Query)
}

func TestAPIErrorSurfaces(t *testing.T) {
	srv, _ := newAPI(t, http.StatusForbidden, `{"error":"forbidden","reason":"insufficient_role"}`)

	_, err := runCLI(t, srv, "", "approve", "CSG-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "insufficient_role")
}

func TestUsageErrors(t *testing.T) {
	srv, captured := newAPI(t, http.StatusOK, `{}`)

	_, err := runCLI(t, srv, "")
	assert.Error(t, err)

	_, err = runCLI(t, srv, "", "approve")
	assert.Error(t, err)

	_, err = runCLI(t, srv, "", "explode", "CSG-1")
	assert.Error(t, err)
	assert.Empty(t, *captured)
}
