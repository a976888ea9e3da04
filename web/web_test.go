package web

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadFormPostsFileField(t *testing.T) {
	form := string(UploadForm())
	assert.Contains(t, form, `enctype="multipart/form-data"`)
	assert.Contains(t, form, `name="file"`)
}

func TestRenderUploadedEscapesURL(t *testing.T) {
	var b strings.Builder
	require.NoError(t, RenderUploaded(&b, `https://files.example.com/cn/"><script>alert(1)</script>`))

	out := b.String()
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "File uploaded:")
}

func TestRenderUploadedNeutralizesScriptURLs(t *testing.T) {
	var b strings.Builder
	require.NoError(t, RenderUploaded(&b, "javascript:alert(1)"))
	assert.NotContains(t, b.String(), `href="javascript:`)
}
