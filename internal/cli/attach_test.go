package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reviewlog/internal/ir"
)

const svgImage = `<svg xmlns="http://www.w3.org/2000/svg" width="1" height="1"/>`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAttach_StoresByExtension(t *testing.T) {
	db := dbPath(t)
	path := writeFile(t, "diagram.svg", svgImage)

	out, _, err := execute(t, "attach", "--db", db, "--format", "json", path)
	require.NoError(t, err)

	var result AttachResult
	decodeResponse(t, out, &result)
	assert.Equal(t, ir.AttachmentID([]byte(svgImage)), result.ID)
	assert.Equal(t, "stored", result.Status)
	assert.Equal(t, "image/svg+xml", result.MimeType)
	assert.Equal(t, len(svgImage), result.Bytes)
	assert.Equal(t, "https://localhost/attachments/"+result.ID, result.URL)

	out, _, err = execute(t, "attach", "--db", db, "--format", "json", path)
	require.NoError(t, err)
	decodeResponse(t, out, &result)
	assert.Equal(t, "alreadyExists", result.Status)
}

func TestAttach_ExplicitMimeType(t *testing.T) {
	path := writeFile(t, "upload.bin", "\x89PNG\r\n")

	out, _, err := execute(t, "attach", "--db", dbPath(t), "--mime", "image/png", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "stored "), out)
	assert.Contains(t, out, "(image/png, 6 bytes)")
}

func TestAttach_UnknownExtension(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello")

	_, _, err := execute(t, "attach", "--db", dbPath(t), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "--mime")
}

func TestAttach_UnsupportedMimeType(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello")

	out, _, err := execute(t, "attach", "--db", dbPath(t), "--format", "json", "--mime", "text/plain", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error.Message, "unsupported attachment mime type")
}

func TestAttach_ConfigBaseURL(t *testing.T) {
	cfg := writeFile(t, "reviewlog.yaml", "attachments:\n  base_url: https://cdn.example.com/img/\n")
	path := writeFile(t, "a.svg", svgImage)

	out, _, err := execute(t, "attach", "--config", cfg, "--db", dbPath(t), "--format", "json", path)
	require.NoError(t, err)

	var result AttachResult
	decodeResponse(t, out, &result)
	assert.Equal(t, "https://cdn.example.com/img/"+result.ID, result.URL)
}
