package db

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for sqlx and goose
)

// Sqlx is a db conn
type Sqlx struct {
	DB *sqlx.DB
}

// NewSqlx opens database connection and returns it
func NewSqlx(ctx context.Context, datasource string) (*Sqlx, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", datasource)
	if err != nil {
		return nil, err
	}
	return &Sqlx{
		DB: db,
	}, nil
}

// Close releases the connection pool
func (s *Sqlx) Close() error {
	return s.DB.Close()
}
