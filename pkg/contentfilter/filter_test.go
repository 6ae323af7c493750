package contentfilter_test

import (
	"path/filepath"
	"testing"

	"github.com/lattice-run/agentgw/pkg/contentfilter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_LiteralMatchNested(t *testing.T) {
	f := contentfilter.New()
	require.NoError(t, f.SetBundle(contentfilter.Bundle{
		Rules: []contentfilter.Rule{{ID: "r1", Label: "sql-injection", Literal: "DROP TABLE"}},
	}))

	v, err := f.Check(map[string]any{"sql": "select 1; DROP TABLE x"})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "sql-injection", v.Label)
}

func TestFilter_RegexMatch(t *testing.T) {
	f := contentfilter.New()
	require.NoError(t, f.SetBundle(contentfilter.Bundle{
		Rules: []contentfilter.Rule{{ID: "r2", Label: "ssn", Pattern: `\d{3}-\d{2}-\d{4}`}},
	}))

	v, err := f.Check(map[string]any{"notes": []any{"ssn is 123-45-6789"}})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "ssn", v.Label)
}

func TestFilter_NoMatchPassesThrough(t *testing.T) {
	f := contentfilter.New()
	require.NoError(t, f.SetBundle(contentfilter.Bundle{
		Rules: []contentfilter.Rule{{ID: "r1", Label: "sql-injection", Literal: "DROP TABLE"}},
	}))

	v, err := f.Check(map[string]any{"sql": "select 1"})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFilter_OnlyValuesNotKeysAreChecked(t *testing.T) {
	f := contentfilter.New()
	require.NoError(t, f.SetBundle(contentfilter.Bundle{
		Rules: []contentfilter.Rule{{ID: "r1", Label: "key-leak", Literal: "secret_key"}},
	}))

	v, err := f.Check(map[string]any{"secret_key": "benign-value"})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFilter_BadPatternRejectedBeforeSwap(t *testing.T) {
	f := contentfilter.New()
	require.NoError(t, f.SetBundle(contentfilter.Bundle{
		Rules: []contentfilter.Rule{{ID: "r1", Label: "ok", Literal: "x"}},
	}))

	err := f.SetBundle(contentfilter.Bundle{
		Rules: []contentfilter.Rule{{ID: "bad", Label: "bad", Pattern: "("}},
	})
	assert.Error(t, err)

	v, err := f.Check(map[string]any{"a": "x"})
	require.NoError(t, err)
	require.NotNil(t, v, "original bundle should still be active after a rejected swap")
}

func TestFilter_LoadAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")

	f, err := contentfilter.Load(path)
	require.NoError(t, err)
	require.NoError(t, f.SetBundle(contentfilter.Bundle{
		Version: "v1",
		Rules:   []contentfilter.Rule{{ID: "r1", Label: "sql-injection", Literal: "DROP TABLE"}},
	}))

	f2, err := contentfilter.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", f2.Bundle().Version)

	v, err := f2.Check(map[string]any{"sql": "DROP TABLE x"})
	require.NoError(t, err)
	require.NotNil(t, v)
}
