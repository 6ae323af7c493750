package schema_test

import (
	"testing"

	"github.com/lattice-run/agentgw/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fileReadSchema = `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "maxLength": 256}
  },
  "required": ["path"],
  "additionalProperties": false
}`

func TestRegistry_UnknownToolAction(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Validate("file.read", map[string]any{})
	assert.ErrorIs(t, err, schema.ErrUnknownTool)
}

func TestRegistry_MissingRequiredField(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register("file.read", []byte(fileReadSchema), schema.Manifest{RiskLevel: "low"}))

	errs, err := r.Validate("file.read", map[string]any{})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_REQUIRED", errs[0].Token)
	assert.Equal(t, "/", errs[0].Pointer)
}

func TestRegistry_TypeMismatch(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register("file.read", []byte(fileReadSchema), schema.Manifest{}))

	errs, err := r.Validate("file.read", map[string]any{"path": 123})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_TYPE", errs[0].Token)
	assert.Equal(t, "/path", errs[0].Pointer)
}

func TestRegistry_AdditionalPropertiesRejected(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register("file.read", []byte(fileReadSchema), schema.Manifest{}))

	errs, err := r.Validate("file.read", map[string]any{"path": "/tmp/x", "extra": "nope"})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_ADDITIONAL", errs[0].Token)
}

func TestRegistry_ValidArgsPassThrough(t *testing.T) {
	r := schema.NewRegistry()
	require.NoError(t, r.Register("file.read", []byte(fileReadSchema), schema.Manifest{}))

	errs, err := r.Validate("file.read", map[string]any{"path": "/tmp/x"})
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestRegistry_ManifestLookup(t *testing.T) {
	r := schema.NewRegistry()
	m := schema.Manifest{RequiredCapabilities: []string{"fs.read"}, RiskLevel: "low"}
	require.NoError(t, r.Register("file.read", []byte(fileReadSchema), m))

	got, ok := r.Manifest("file.read")
	require.True(t, ok)
	assert.Equal(t, []string{"fs.read"}, got.RequiredCapabilities)
}
