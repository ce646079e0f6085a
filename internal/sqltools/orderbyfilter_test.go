package sqltools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderByFilters(t *testing.T) {
	for _, ts := range []struct {
		name     string
		filters  OrderByFilters
		expected string
	}{
		{
			name:     "empty",
			filters:  OrderByFilters{},
			expected: "",
		},
		{
			name:     "one filter",
			filters:  OrderByFilters{{Field: "created_at"}},
			expected: "created_at ASC",
		},
		{
			name:     "one filter desc with nulls last",
			filters:  OrderByFilters{{Field: "tx_hash", Desc: true, NullsLast: true}},
			expected: "tx_hash DESC NULLS LAST",
		},
		{
			name:     "several filters",
			filters:  OrderByFilters{{Field: "status"}, {Field: "created_at", Desc: true}},
			expected: "status ASC, created_at DESC",
		},
	} {
		t.Run(ts.name, func(t *testing.T) {
			assert.Equal(t, ts.expected, ts.filters.String())
		})
	}
}

func TestOrderByFilters_Add(t *testing.T) {
	var filters OrderByFilters
	require.NoError(t, filters.Add("status", false))
	require.NoError(t, filters.AddWithNullsLast("tx_hash", true))
	assert.ErrorIs(t, filters.Add("status", true), ErrDuplicatedField)
	assert.Equal(t, "status ASC, tx_hash DESC NULLS LAST", filters.String())
}
