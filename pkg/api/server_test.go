package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/governor/pkg/carp"
	"github.com/codeready-toolchain/governor/pkg/config"
	"github.com/codeready-toolchain/governor/pkg/runtime"
)

func writeTestAtlas(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(`
id: cra.example
version: 1.0.0
name: Example Atlas
capabilities: ["echo"]
context_packs: ["context/guide.md"]
policy_files: ["policy/default.yaml"]
adapters: ["adapters/echo.yaml"]
`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "context"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "context", "guide.md"), []byte("# Guide"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "policy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy", "default.yaml"), []byte(`
id: default
name: Default policy
rules: []
`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "adapters"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "adapters", "echo.yaml"), []byte(`
name: echo-adapter
actions:
  - action_id: cra.echo
    kind: tool_call
    input_schema:
      type: object
      properties:
        message:
          type: string
    requires_approval: false
    timeout_ms: 5000
    capabilities: ["echo"]
`), 0o644))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	writeTestAtlas(t, dir)

	cfg := config.Default()
	cfg.Atlas.Dirs = []string{dir}

	rt, err := runtime.New(context.Background(), cfg, nil)
	require.NoError(t, err)

	return NewServer(rt)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthHandlerReturnsOK(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, carp.Version, body.CARPVersion)
}

func TestCreateSessionThenEndSession(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/v1/sessions", createSessionRequest{
		Scopes:     []string{"carp.resolve", "carp.execute"},
		TTLSeconds: 3600,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created createSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	require.NotEmpty(t, created.TraceID)

	rec = doJSON(t, s, http.MethodPost, "/v1/sessions/"+created.SessionID+"/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var ended endSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ended))
	assert.Equal(t, created.SessionID, ended.SessionID)
}

func TestEndUnknownSessionReturnsNotFoundErrorShape(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodPost, "/v1/sessions/does-not-exist/end", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", string(body.Kind))
}

func TestResolveGrantsActionsThenExecuteSucceeds(t *testing.T) {
	s := newTestServer(t)

	sessionRec := doJSON(t, s, http.MethodPost, "/v1/sessions", createSessionRequest{
		Scopes:     []string{"carp.resolve", "carp.execute"},
		TTLSeconds: 3600,
	})
	require.Equal(t, http.StatusCreated, sessionRec.Code)
	var sess createSessionResponse
	require.NoError(t, json.Unmarshal(sessionRec.Body.Bytes(), &sess))

	capability := "echo"
	envelope := carp.NewRequest("req-1", carp.SessionRef{SessionID: sess.SessionID},
		&carp.AtlasRef{ID: "cra.example", Version: "1.0.0", Capability: &capability},
		carp.ResolveRequestPayload{Task: carp.Task{Goal: "say hello", RiskTier: carp.RiskLow}},
		carp.TraceRef{TraceID: sess.TraceID, SpanID: "span-1"},
	)
	resolveRec := doJSON(t, s, http.MethodPost, "/v1/carp/resolve", envelope)
	require.Equal(t, http.StatusOK, resolveRec.Code, resolveRec.Body.String())

	var resolved carp.Envelope
	require.NoError(t, json.Unmarshal(resolveRec.Body.Bytes(), &resolved))

	payloadBytes, err := json.Marshal(resolved.Payload)
	require.NoError(t, err)
	var resolution struct {
		ResolutionID   string `json:"resolution_id"`
		AllowedActions []struct {
			ActionID string `json:"action_id"`
		} `json:"allowed_actions"`
	}
	require.NoError(t, json.Unmarshal(payloadBytes, &resolution))
	require.NotEmpty(t, resolution.AllowedActions)

	execRec := doJSON(t, s, http.MethodPost, "/v1/carp/execute", executeRequest{
		SessionID:    sess.SessionID,
		ResolutionID: resolution.ResolutionID,
		ActionID:     resolution.AllowedActions[0].ActionID,
		Parameters:   map[string]any{"message": "hi"},
		TraceID:      sess.TraceID,
		SpanID:       "span-2",
	})
	require.Equal(t, http.StatusOK, execRec.Code, execRec.Body.String())

	var execResp executeResponse
	require.NoError(t, json.Unmarshal(execRec.Body.Bytes(), &execResp))
	assert.NotEmpty(t, execResp.ExecutionID)
	assert.Equal(t, "completed", execResp.Status)
}

func TestGetExecutionUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/carp/executions/unknown-id", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTraceEventsForUnknownTraceReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/v1/traces/unknown-trace/events", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHighRiskResolveRequiresApprovalAndExecuteIsForbiddenWithoutIt(t *testing.T) {
	s := newTestServer(t)

	sessionRec := doJSON(t, s, http.MethodPost, "/v1/sessions", createSessionRequest{
		Scopes:     []string{"carp.resolve", "carp.execute"},
		TTLSeconds: 3600,
	})
	require.Equal(t, http.StatusCreated, sessionRec.Code)
	var sess createSessionResponse
	require.NoError(t, json.Unmarshal(sessionRec.Body.Bytes(), &sess))

	capability := "echo"
	envelope := carp.NewRequest("req-1", carp.SessionRef{SessionID: sess.SessionID},
		&carp.AtlasRef{ID: "cra.example", Version: "1.0.0", Capability: &capability},
		carp.ResolveRequestPayload{Task: carp.Task{Goal: "say hello", RiskTier: carp.RiskHigh}},
		carp.TraceRef{TraceID: sess.TraceID, SpanID: "span-1"},
	)
	resolveRec := doJSON(t, s, http.MethodPost, "/v1/carp/resolve", envelope)
	require.Equal(t, http.StatusOK, resolveRec.Code, resolveRec.Body.String())

	var resolved carp.Envelope
	require.NoError(t, json.Unmarshal(resolveRec.Body.Bytes(), &resolved))
	payloadBytes, err := json.Marshal(resolved.Payload)
	require.NoError(t, err)
	var resolution struct {
		ResolutionID   string `json:"resolution_id"`
		AllowedActions []struct {
			ActionID         string `json:"action_id"`
			RequiresApproval bool   `json:"requires_approval"`
		} `json:"allowed_actions"`
	}
	require.NoError(t, json.Unmarshal(payloadBytes, &resolution))
	require.NotEmpty(t, resolution.AllowedActions)
	require.True(t, resolution.AllowedActions[0].RequiresApproval)

	execRec := doJSON(t, s, http.MethodPost, "/v1/carp/execute", executeRequest{
		SessionID:    sess.SessionID,
		ResolutionID: resolution.ResolutionID,
		ActionID:     resolution.AllowedActions[0].ActionID,
		Parameters:   map[string]any{},
		TraceID:      sess.TraceID,
		SpanID:       "span-2",
	})
	require.Equal(t, http.StatusForbidden, execRec.Code)

	pendingRec := doJSON(t, s, http.MethodGet, "/v1/carp/actions/pending?session_id="+sess.SessionID, nil)
	require.Equal(t, http.StatusOK, pendingRec.Code)
	var pending pendingApprovalsResponse
	require.NoError(t, json.Unmarshal(pendingRec.Body.Bytes(), &pending))
	assert.Equal(t, 0, pending.Count, "no request_approval call was made yet, so nothing is pending")
}
