package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-dev/folio/internal/auth"
	"github.com/folio-dev/folio/internal/engine"
	"github.com/folio-dev/folio/internal/metrics"
	"github.com/folio-dev/folio/pkg/schema"
)

const testToken = "secret"

type testEnv struct {
	router *gin.Engine
	store  *engine.CollectionStore
	paths  engine.Paths
}

func setupTestRouter(t *testing.T, titles ...string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	paths := engine.Paths{
		Working: filepath.Join(dir, "data", "projects.json"),
		Backup:  filepath.Join(dir, "backup", "projects.json"),
	}
	seed := make([]schema.Collection, len(titles))
	for i, title := range titles {
		seed[i] = schema.Collection{ID: i, Title: title}
	}
	require.NoError(t, engine.NewPersistence().Save(paths.Working, seed))

	keyPath := filepath.Join(dir, "pass.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(testToken), 0600))

	store := engine.NewCollectionStore(paths, nil)
	h := &Handler{Store: store}
	r := NewRouter(h, auth.NewGate(keyPath), RouterOptions{Metrics: metrics.NewCollector("test")})
	return &testEnv{router: r, store: store, paths: paths}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) working(t *testing.T) []schema.Collection {
	t.Helper()
	got, err := engine.NewPersistence().Load(e.paths.Working)
	require.NoError(t, err)
	return got
}

func titles(collections []schema.Collection) []string {
	out := make([]string, len(collections))
	for i, c := range collections {
		out[i] = c.Title
	}
	return out
}

func TestListProjects(t *testing.T) {
	env := setupTestRouter(t, "A", "B")

	w := env.do(t, http.MethodGet, "/v1/projects", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []schema.Collection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, env.working(t), got)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestListProjects_ReadFailureReinitializes(t *testing.T) {
	env := setupTestRouter(t, "A")
	require.NoError(t, os.WriteFile(env.paths.Working, []byte("{broken"), 0644))

	w := env.do(t, http.MethodGet, "/v1/projects", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var msg string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, LoadFailedBody, msg)

	// No origin configured, so re-initialization leaves a placeholder behind.
	got := env.working(t)
	require.Len(t, got, 1)
	assert.Equal(t, "New Title 0", got[0].Title)

	w = env.do(t, http.MethodGet, "/v1/projects", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "["))
}

// disconnectingStore cancels the request context once List has failed, the way a
// client hanging up mid-request would.
type disconnectingStore struct {
	*engine.CollectionStore
	cancel context.CancelFunc
}

func (d disconnectingStore) List(ctx context.Context) ([]schema.Collection, error) {
	out, err := d.CollectionStore.List(ctx)
	d.cancel()
	return out, err
}

func TestListProjects_ReinitializeSurvivesClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]schema.Collection{{ID: 0, Title: "R0"}, {ID: 1, Title: "R1"}})
	}))
	defer origin.Close()

	dir := t.TempDir()
	paths := engine.Paths{
		Working: filepath.Join(dir, "data", "projects.json"),
		Backup:  filepath.Join(dir, "backup", "projects.json"),
	}
	store := engine.NewCollectionStore(paths, engine.NewOrigin(origin.URL+"/projects.json"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &Handler{Store: disconnectingStore{CollectionStore: store, cancel: cancel}}
	r := NewRouter(h, auth.NewGate(filepath.Join(dir, "pass.key")), RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/projects", nil).WithContext(ctx)
	r.ServeHTTP(httptest.NewRecorder(), req)

	p := engine.NewPersistence()
	for _, path := range []string{paths.Working, paths.Backup} {
		got, err := p.Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"R0", "R1"}, titles(got), path)
	}
}

func TestCreateProject_PartialRecordStoresEmptySequences(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/v1/projects", testToken, `{"id": 0, "title": "A"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/v1/projects", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "null")
	assert.Contains(t, w.Body.String(), `"tags":[]`)
	assert.Contains(t, w.Body.String(), `"keypoints":[]`)
	assert.Contains(t, w.Body.String(), `"text_fields":[]`)
}

func TestCreateProject(t *testing.T) {
	env := setupTestRouter(t, "A")

	w := env.do(t, http.MethodPost, "/v1/projects", testToken, schema.Collection{ID: 1, Title: "B"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `Added "B"`, w.Body.String())

	got := env.working(t)
	assert.Equal(t, []string{"A", "B"}, titles(got))
	assert.True(t, schema.Dense(got))
}

func TestMutationsRequireToken(t *testing.T) {
	tests := []struct {
		method string
		body   any
	}{
		{http.MethodPost, schema.Collection{ID: 3, Title: "X"}},
		{http.MethodPut, schema.Collection{ID: 0, Title: "X"}},
		{http.MethodDelete, map[string]any{"id": 0, "title": "A"}},
	}

	for _, tt := range tests {
		for _, token := range []string{"", "wrong"} {
			t.Run(tt.method+"/"+token, func(t *testing.T) {
				env := setupTestRouter(t, "A", "B")
				before, err := os.ReadFile(env.paths.Working)
				require.NoError(t, err)

				w := env.do(t, tt.method, "/v1/projects", token, tt.body)
				assert.Equal(t, http.StatusUnauthorized, w.Code)
				assert.Equal(t, auth.UnauthorizedBody, w.Body.String())

				after, err := os.ReadFile(env.paths.Working)
				require.NoError(t, err)
				assert.Equal(t, before, after, "rejected request must not mutate the store")
			})
		}
	}
}

func TestUpdateProject(t *testing.T) {
	env := setupTestRouter(t, "A", "B")

	w := env.do(t, http.MethodPut, "/v1/projects", testToken, schema.Collection{ID: 1, Title: "B2"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `Updated "B2"`, w.Body.String())
	assert.Equal(t, "B2", env.working(t)[1].Title)

	w = env.do(t, http.MethodPut, "/v1/projects", testToken, schema.Collection{ID: 9, Title: "Z"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, float64(9), res["id"])
	assert.Len(t, env.working(t), 2)
}

func TestDeleteProject(t *testing.T) {
	env := setupTestRouter(t, "A", "B", "C")

	w := env.do(t, http.MethodDelete, "/v1/projects", testToken, map[string]any{"id": 1, "title": "B"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `Deleted "B"`, w.Body.String())
	got := env.working(t)
	assert.Equal(t, []string{"A", "C"}, titles(got))
	assert.True(t, schema.Dense(got))
}

func TestDeleteProject_OutOfRange(t *testing.T) {
	env := setupTestRouter(t, "A")

	w := env.do(t, http.MethodDelete, "/v1/projects", testToken, map[string]any{"id": 5, "title": "?"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, float64(5), res["id"])
	assert.Contains(t, res["error"], "out of range")
	assert.Len(t, env.working(t), 1)
}

func TestDeleteProject_MissingID(t *testing.T) {
	env := setupTestRouter(t, "A")

	w := env.do(t, http.MethodDelete, "/v1/projects", testToken, map[string]any{"title": "A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, env.working(t), 1)
}

func TestInvalidJSONBody(t *testing.T) {
	env := setupTestRouter(t, "A")

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		w := env.do(t, method, "/v1/projects", testToken, "invalid")
		assert.Equal(t, http.StatusBadRequest, w.Code, method)
	}
}

func TestWriteFailureIsServerError(t *testing.T) {
	env := setupTestRouter(t, "A")
	require.NoError(t, os.Remove(env.paths.Working))

	w := env.do(t, http.MethodPost, "/v1/projects", testToken, schema.Collection{Title: "B"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestStatus(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/v1/folio", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusBody, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodOptions, "/v1/projects", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(t, "A")
	env.do(t, http.MethodGet, "/v1/projects", "", nil)

	w := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",route="/v1/projects",status="200"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/v2/projects", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
