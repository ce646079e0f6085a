package db

import (
	"testing"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestQuerierImplementations(t *testing.T) {
	var pool Querier = (*pgxpool.Pool)(nil)
	var tx Querier = pgx.Tx(nil)
	assert.Nil(t, pool)
	assert.Nil(t, tx)
}
