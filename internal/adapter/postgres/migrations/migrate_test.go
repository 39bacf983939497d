package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":   {Data: []byte("SELECT 1")},
		"002_second.sql":  {Data: []byte("SELECT 1")},
		"001_initial.sql": {Data: []byte("SELECT 1")},
		"README.md":       {Data: []byte("docs")},
		"old/003.sql":     {Data: []byte("SELECT 1")},
	}

	files, err := List(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial.sql", "002_second.sql", "010_later.sql"}, files)
}

func TestEmbeddedFiles(t *testing.T) {
	files, err := List(Files)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial.sql", "002_distributions.sql", "003_idempotency.sql"}, files)

	for _, f := range files {
		data, err := Files.ReadFile(f)
		require.NoError(t, err)
		assert.NotEmpty(t, data, f)
	}
}
