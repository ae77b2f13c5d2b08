package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmitchellscott/nixpdf/internal/dispatch"
	"github.com/rmitchellscott/nixpdf/internal/pdfops"
	"github.com/rmitchellscott/nixpdf/internal/pdftest"
)

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"degrees=180", "password=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "180", p["degrees"])
	assert.Equal(t, "a=b", p["password"])

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)
}

func TestRunMergeWritesResult(t *testing.T) {
	in := t.TempDir()
	a := pdftest.PDF(t, in, "a.pdf", 100)
	b := pdftest.PDF(t, in, "b.pdf", 120, 140)
	outDir := filepath.Join(t.TempDir(), "out")

	d := dispatch.New(dispatch.Tools{})
	var stdout bytes.Buffer
	dst, err := run(context.Background(), d, "merge", []string{a, b}, dispatch.Params{}, outDir, &stdout)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "merged.pdf"), dst)
	assert.Empty(t, stdout.String())

	info, err := pdfops.Inspect(dst)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Pages)

	for _, p := range []string{a, b} {
		_, err := os.Stat(p)
		assert.NoError(t, err, "inputs must not be removed")
	}
}

func TestRunInfoPrintsJSON(t *testing.T) {
	in := pdftest.PDF(t, t.TempDir(), "doc.pdf", 100, 100)
	outDir := t.TempDir()

	var stdout bytes.Buffer
	dst, err := run(context.Background(), dispatch.New(dispatch.Tools{}), "info", []string{in}, nil, outDir, &stdout)
	require.NoError(t, err)
	assert.Empty(t, dst)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.EqualValues(t, 2, got["pages"])

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunRejectsWrongInput(t *testing.T) {
	img := pdftest.PNG(t, t.TempDir(), "a.png", 10, 10)
	_, err := run(context.Background(), dispatch.New(dispatch.Tools{}), "rotate", []string{img}, nil, t.TempDir(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "File must be a PDF")

	_, err = run(context.Background(), dispatch.New(dispatch.Tools{}), "rotate", []string{filepath.Join(t.TempDir(), "missing.pdf")}, nil, t.TempDir(), &bytes.Buffer{})
	assert.Error(t, err)
}
