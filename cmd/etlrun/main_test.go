package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupWorkspace isolates config discovery and returns a config file that
// keeps history inside a temp dir.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	content := "store:\n  sqlite_path: " + filepath.Join(dir, "etlrun.db") + "\nlog:\n  level: warn\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

var runIDPattern = regexp.MustCompile(`Run ([0-9a-f-]{36}) \(`)

func TestRunAndInspect(t *testing.T) {
	cfgPath := setupWorkspace(t)

	out, err := execute(t, "run", "--config", cfgPath, "--dry-run", "--store", "sqlite", "--retain", "--data", "1,2,3")
	require.NoError(t, err, out)
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "etlrun inspect")

	m := runIDPattern.FindStringSubmatch(out)
	require.Len(t, m, 2, "run ID not printed:\n%s", out)
	runID := m[1]

	out, err = execute(t, "inspect", "--config", cfgPath, "--store", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "xcom_etl_email_example")

	out, err = execute(t, "inspect", "--config", cfgPath, "--store", "sqlite", runID)
	require.NoError(t, err)
	for _, want := range []string{"extract_task/raw_data", "transform_task/transformed_data", "load_task/email_body", "send_email"} {
		assert.Contains(t, out, want)
	}

	out, err = execute(t, "inspect", "--config", cfgPath, "--store", "sqlite", runID, "load_task")
	require.NoError(t, err)
	assert.Equal(t, "email_body\nemail_subject\n", out)

	out, err = execute(t, "inspect", "--config", cfgPath, "--store", "sqlite", runID, "transform_task", "transformed_data")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":6,"average":2}`, strings.TrimSpace(out))

	out, err = execute(t, "inspect", "--config", cfgPath, "--store", "sqlite", runID, "load_task", "email_body")
	require.NoError(t, err)
	var body string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &body))
	assert.Contains(t, body, "<p>Total Sum: 6</p>")
	assert.Contains(t, body, "<p>Average Value: 2.0</p>")
}

func TestRunEmptyDataFails(t *testing.T) {
	cfgPath := setupWorkspace(t)

	out, err := execute(t, "run", "--config", cfgPath, "--dry-run", "--data", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot average empty sequence")
	assert.Contains(t, out, "upstream_failed")
}

func TestInspectMemoryStoreRejected(t *testing.T) {
	cfgPath := setupWorkspace(t)

	_, err := execute(t, "inspect", "--config", cfgPath, "--store", "memory", "run", "task", "label")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent store")
}

func TestInspectUnknownRun(t *testing.T) {
	cfgPath := setupWorkspace(t)

	_, err := execute(t, "inspect", "--config", cfgPath, "missing-run")
	assert.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	setupWorkspace(t)

	_, err := execute(t, "run", "--config", "nope.yaml")
	assert.Error(t, err)
}
