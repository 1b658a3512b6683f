package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-dev/folio/internal/config"
	"github.com/folio-dev/folio/internal/engine"
	"github.com/folio-dev/folio/pkg/schema"
)

func writeSettings(t *testing.T, originURL string) (string, *config.Settings) {
	t.Helper()
	dir := t.TempDir()
	s := config.Default()
	s.Storage.RemoteURL = originURL
	s.Storage.LocalProjectsPath = filepath.Join(dir, "data")
	s.Storage.LocalBackupPath = filepath.Join(dir, "backup")
	s.Storage.RemoteTimeoutRaw = "2s"
	s.Auth.PasskeyPath = filepath.Join(dir, "pass.key")
	s.Logging.Level = "error"

	path := filepath.Join(dir, "core", "settings.yaml")
	require.NoError(t, config.Write(path, s))
	return path, s
}

func remoteOrigin(t *testing.T, titles ...string) *httptest.Server {
	t.Helper()
	records := make([]schema.Collection, len(titles))
	for i, title := range titles {
		records[i] = schema.Collection{ID: i, Title: title}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(records)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncCommand(t *testing.T) {
	origin := remoteOrigin(t, "remote-a", "remote-b")
	path, s := writeSettings(t, origin.URL)

	cmd := newRootCommand()
	cmd.SetArgs([]string{"sync", "--config", path})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	for _, file := range []string{s.WorkingFile(), s.BackupFile()} {
		got, err := engine.NewPersistence().Load(file)
		require.NoError(t, err, file)
		assert.Len(t, got, 2)
	}
}

func TestSyncCommand_InvalidSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: not-an-ip\n"), 0644))

	cmd := newRootCommand()
	cmd.SetArgs([]string{"sync", "--config", path})
	assert.Error(t, cmd.ExecuteContext(context.Background()))
}

func TestAppHandler(t *testing.T) {
	origin := remoteOrigin(t, "remote-a")
	path, s := writeSettings(t, origin.URL)
	require.NoError(t, os.WriteFile(s.Auth.PasskeyPath, []byte("key"), 0600))

	a, err := newApp(path)
	require.NoError(t, err)
	source, err := a.initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, engine.SourceRemote, source)

	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/projects")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got []schema.Collection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "remote-a", got[0].Title)

	metricsResp, err := http.Get(srv.URL + s.Metrics.Path)
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}
