package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/intergov/notary/internal/db"
	"github.com/intergov/notary/internal/db/tests"
	"github.com/intergov/notary/internal/log"
)

var (
	storage  *db.Storage
	sqlxConn *db.Sqlx
)

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx := log.NewContext(context.Background(), log.LevelDebug, log.OutputText, os.Stdout)
	server := tests.LookupPostgresURL()
	if server == "" {
		log.Info(ctx, "no test database configured, repository tests are skipped", "env", tests.PostgresEnv)
		return m.Run()
	}
	s, url, teardown, err := tests.NewTestStorage(server)
	defer teardown()
	if err != nil {
		log.Error(ctx, "failed to acquire test database", "err", err)
		return 1
	}
	storage = s
	sqlxConn, err = db.NewSqlx(ctx, url)
	if err != nil {
		log.Error(ctx, "failed to open sqlx connection", "err", err)
		return 1
	}
	defer func() { _ = sqlxConn.Close() }()
	return m.Run()
}

func requireStorage(t *testing.T) {
	t.Helper()
	if storage == nil {
		t.Skipf("%s is not set", tests.PostgresEnv)
	}
}
