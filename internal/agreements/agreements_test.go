package agreements

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intergov/notary/internal/core/domain"
)

func TestDefaultCatalogue(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	a, ok := c.Match("  china australia   FTA ")
	require.True(t, ok)
	assert.Equal(t, "ChAFTA", a.Code)

	a, ok = c.Match("Regional Comprehensive Economic Partnership")
	require.True(t, ok)
	assert.Equal(t, "RCEP", a.Code)

	_, ok = c.Match("Treaty of Westphalia")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agreements.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agreements:\n  - code: X\n    name: Example Agreement\n"), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	_, ok := c.Match("example agreement")
	assert.True(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, domain.IsConfigurationError(err))

	_, err = Parse([]byte("agreements:\n  - name: nameless code\n"))
	assert.True(t, domain.IsConfigurationError(err))
}
