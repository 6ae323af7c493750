package crypto_test

import (
	"testing"

	"github.com/lattice-run/agentgw/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalHasher_KeyOrderIndependent(t *testing.T) {
	h := crypto.NewCanonicalHasher()

	a, err := h.Hash(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)

	b, err := h.Hash(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCanonicalHasher_DifferentValuesDiffer(t *testing.T) {
	h := crypto.NewCanonicalHasher()

	a, err := h.Hash(map[string]any{"a": 1})
	require.NoError(t, err)

	b, err := h.Hash(map[string]any{"a": 2})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFingerprint_IsPrefixed(t *testing.T) {
	fp, err := crypto.Fingerprint(map[string]any{"tool": "noop"})
	require.NoError(t, err)
	assert.Contains(t, fp, "sha256:")
}
