package keystore_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lattice-run/agentgw/pkg/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainEncryptor struct{}

func (plainEncryptor) Encrypt(s string) (string, error) { return "enc:" + s, nil }
func (plainEncryptor) Decrypt(s string) (string, error) { return s[len("enc:"):], nil }

func TestStore_SetAndGet(t *testing.T) {
	s, err := keystore.Open(filepath.Join(t.TempDir(), "keys.json"), plainEncryptor{})
	require.NoError(t, err)

	require.NoError(t, s.Set("openai", "sk-test-123", 0))
	v, err := s.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", v)
}

func TestStore_RotatePreservesLatestValue(t *testing.T) {
	s, err := keystore.Open(filepath.Join(t.TempDir(), "keys.json"), plainEncryptor{})
	require.NoError(t, err)

	require.NoError(t, s.Set("anthropic", "old-value", 0))
	require.NoError(t, s.Rotate("anthropic", "new-value", 0))

	v, err := s.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "new-value", v)

	st := s.Status("anthropic")
	assert.NotNil(t, st.RotatedAt)
}

func TestStore_EnvFallback(t *testing.T) {
	t.Setenv("AGENTGW_PROVIDER_CUSTOM_PROVIDER_KEY", "from-env")

	s, err := keystore.Open(filepath.Join(t.TempDir(), "keys.json"), plainEncryptor{})
	require.NoError(t, err)

	v, err := s.Get("custom-provider")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	st := s.Status("custom-provider")
	assert.True(t, st.Connected)
	assert.True(t, st.FromEnv)
}

func TestStore_GetUnknownProviderErrors(t *testing.T) {
	s, err := keystore.Open(filepath.Join(t.TempDir(), "keys.json"), plainEncryptor{})
	require.NoError(t, err)

	_, err = s.Get("nope")
	assert.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	s, err := keystore.Open(filepath.Join(t.TempDir(), "keys.json"), plainEncryptor{})
	require.NoError(t, err)

	require.NoError(t, s.Set("openai", "sk-abc", 0))
	require.NoError(t, s.Delete("openai"))

	_, err = s.Get("openai")
	assert.Error(t, err)
}

func TestStore_Expiring(t *testing.T) {
	s, err := keystore.Open(filepath.Join(t.TempDir(), "keys.json"), plainEncryptor{})
	require.NoError(t, err)

	require.NoError(t, s.Set("soon", "v1", time.Minute))
	require.NoError(t, s.Set("later", "v2", 24*time.Hour))

	expiring := s.Expiring(time.Hour)
	require.Len(t, expiring, 1)
	assert.Equal(t, "soon", expiring[0].Provider)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")

	s1, err := keystore.Open(path, plainEncryptor{})
	require.NoError(t, err)
	require.NoError(t, s1.Set("openai", "sk-persist", 0))

	s2, err := keystore.Open(path, plainEncryptor{})
	require.NoError(t, err)
	v, err := s2.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-persist", v)
}
