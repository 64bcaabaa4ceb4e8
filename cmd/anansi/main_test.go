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
)

func TestParseMetadata(t *testing.T) {
	metadata, err := parseMetadata([]string{"author=franklin", "team=x-ray"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"author": "franklin", "team": "x-ray"}, metadata)

	metadata, err = parseMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, metadata)

	_, err = parseMetadata([]string{"no-equals"})
	require.Error(t, err)

	_, err = parseMetadata([]string{"=value"})
	require.Error(t, err)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short text", excerpt("short\n  text", 80))
	long := strings.Repeat("word ", 50)
	out := excerpt(long, 20)
	assert.Len(t, out, 23)
	assert.True(t, strings.HasSuffix(out, "..."))
}

func TestIngestCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("Rosalind Franklin worked at King's College London."), 0o644))

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"ingest", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "created")
	assert.Contains(t, out.String(), path)
}
