package web

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplatesRenderStartPage(t *testing.T) {
	tmpl, err := Templates()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&buf, StartPage, map[string]any{"State": "<pending>"}))
	require.Contains(t, buf.String(), "Alterra Verification")
	require.Contains(t, buf.String(), "&lt;pending&gt;")
}
