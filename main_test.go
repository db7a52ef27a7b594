package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/artifact"
)

const listingsHeader = "id,neighbourhood_group,price,longitude,latitude,last_review\n"

type env struct {
	store   *artifact.Store
	workDir string
}

// setupEnv points the command at a fresh artifact store, work dir and run
// registry, and publishes content as sample.csv:v0.
func setupEnv(t *testing.T, content string) env {
	t.Helper()
	root := t.TempDir()
	workDir := t.TempDir()

	t.Setenv("ARTIFACT_ROOT", filepath.Join(root, "artifacts"))
	t.Setenv("WORK_DIR", workDir)
	t.Setenv("TRACKING_DB", filepath.Join(root, "runs.db"))
	t.Setenv("PUSHGATEWAY_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	store, err := artifact.NewStore(filepath.Join(root, "artifacts"))
	require.NoError(t, err)

	input := filepath.Join(t.TempDir(), "sample.csv")
	require.NoError(t, os.WriteFile(input, []byte(content), 0o644))
	raw, err := artifact.New("sample.csv", "raw_data", "Raw NYC listings")
	require.NoError(t, err)
	require.NoError(t, raw.AddFile(input))
	_, err = store.Publish(context.Background(), raw, "")
	require.NoError(t, err)

	return env{store: store, workDir: workDir}
}

func cleaningArgs(extra ...string) []string {
	args := []string{
		"--input_artifact", "sample.csv:latest",
		"--output_artifact", "clean_sample.csv",
		"--output_type", "clean_sample",
		"--output_description", "Data with outliers and null values removed",
		"--min_price", "10",
		"--max_price", "100",
	}
	return append(args, extra...)
}

func publishedOutput(t *testing.T, e env) string {
	t.Helper()
	path, _, err := e.store.File(context.Background(), artifact.Ref{Name: "clean_sample.csv", Version: artifact.LatestAlias})
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestExecuteCleansAndPublishes(t *testing.T) {
	e := setupEnv(t, listingsHeader+
		"1,Manhattan,50,-73.9,40.7,2019-01-01\n"+
		"2,Brooklyn,500,-73.9,40.7,2019-01-01\n"+
		"3,Queens,50,-80.0,40.7,\n")

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), cleaningArgs(), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Equal(t, listingsHeader+"1,Manhattan,50,-73.9,40.7,2019-01-01\n", publishedOutput(t, e))
	assert.NoFileExists(t, filepath.Join(e.workDir, "clean_sample.csv"))
	assert.Contains(t, stdout.String(), "BASIC CLEANING REPORT")
	assert.Contains(t, stdout.String(), "Output rows          : 1")
	assert.Empty(t, stderr.String())
}

func TestExecuteAppliesProfile(t *testing.T) {
	e := setupEnv(t, listingsHeader+
		"1,Manhattan,50,-73.9,40.7,5.1.2019\n"+
		"2,Manhattan,50,-73.9,40.8,6.1.2019\n")

	profile := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(`
bounds:
  min_longitude: -74.25
  max_longitude: -73.50
  min_latitude: 40.75
  max_latitude: 41.2
date_layouts:
  - "2.1.2006"
`), 0o644))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), cleaningArgs("--config", profile), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	assert.Equal(t, listingsHeader+"2,Manhattan,50,-73.9,40.8,2019-01-06\n", publishedOutput(t, e))
}

func TestExecuteRequiresFlags(t *testing.T) {
	setupEnv(t, listingsHeader)

	args := cleaningArgs()
	var withoutMin []string
	for i := 0; i < len(args); i += 2 {
		if args[i] != "--min_price" {
			withoutMin = append(withoutMin, args[i], args[i+1])
		}
	}

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), withoutMin, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), `"min_price"`)
}

func TestExecuteRejectsInvalidRange(t *testing.T) {
	e := setupEnv(t, listingsHeader+"1,Manhattan,50,-73.9,40.7,\n")

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), cleaningArgs("--min_price", "200"), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "must be <= max_price")

	_, err := e.store.Resolve(context.Background(), artifact.Ref{Name: "clean_sample.csv", Version: artifact.LatestAlias})
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestExecuteFailsOnInvalidDate(t *testing.T) {
	e := setupEnv(t, listingsHeader+
		"1,Manhattan,50,-73.9,40.7,2019-01-01\n"+
		"2,Manhattan,50,-73.9,40.7,not-a-date\n")

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), cleaningArgs(), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Equal(t, 1, strings.Count(stderr.String(), "invalid last_review date"), stderr.String())
	assert.Contains(t, stderr.String(), "not-a-date")
	assert.Empty(t, stdout.String())

	_, err := e.store.Resolve(context.Background(), artifact.Ref{Name: "clean_sample.csv", Version: artifact.LatestAlias})
	assert.ErrorIs(t, err, artifact.ErrNotFound)
	assert.NoFileExists(t, filepath.Join(e.workDir, "clean_sample.csv"))
}

func TestExecuteExportFailureExitsNonZero(t *testing.T) {
	setupEnv(t, listingsHeader+"1,Manhattan,50,-73.9,40.7,\n")
	t.Setenv("POSTGRES_HOST", "127.0.0.1")
	t.Setenv("POSTGRES_PORT", "1")
	t.Setenv("MAX_RETRIES", "1")

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), cleaningArgs("--export_postgres"), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "postgres")
}
