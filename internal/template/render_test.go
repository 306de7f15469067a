package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	out, err := Render("welcome", "Hello {{.name}}, your code is {{.code}}.", map[string]string{
		"name": "Ada",
		"code": "X1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, your code is X1.", out)
}

func TestRenderNoVariables(t *testing.T) {
	out, err := Render("plain", "No placeholders here.", nil)
	require.NoError(t, err)
	assert.Equal(t, "No placeholders here.", out)
}

func TestRenderMissingVariable(t *testing.T) {
	_, err := Render("welcome", "Hello {{.name}}!", map[string]string{"other": "x"})
	require.Error(t, err)

	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, "welcome", renderErr.Template)
}

func TestRenderBadSyntax(t *testing.T) {
	_, err := Render("broken", "Hello {{.name", nil)
	require.Error(t, err)

	var renderErr *RenderError
	assert.True(t, errors.As(err, &renderErr))
}
