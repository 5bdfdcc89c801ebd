package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn := Settings{User: "app", Pass: "p@ss", Host: "db", Port: "3306", Name: "eventhub"}.DSN()
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "p@ss", cfg.Passwd)
	assert.Equal(t, "db:3306", cfg.Addr)
	assert.Equal(t, "eventhub", cfg.DBName)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, time.UTC, cfg.Loc)
	// ParseDSN keeps charset out of Params, so check the rendered string
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestSplitStatements(t *testing.T) {
	src := `-- users first
CREATE TABLE a (
  id INT
);

-- then b
CREATE TABLE b (id INT);
;
`
	got := splitStatements(src)
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[0], "CREATE TABLE a"))
	assert.Equal(t, "CREATE TABLE b (id INT)", got[1])
}

func TestEmbeddedMigrationCreatesTables(t *testing.T) {
	raw, err := migrationFiles.ReadFile("migrations/0001_init.sql")
	require.NoError(t, err)
	stmts := splitStatements(string(raw))
	for _, table := range Tables {
		found := false
		for _, s := range stmts {
			if strings.Contains(s, "CREATE TABLE IF NOT EXISTS "+table+" ") || strings.Contains(s, "CREATE TABLE "+table+" ") {
				found = true
			}
		}
		assert.True(t, found, "no CREATE TABLE for %s", table)
	}
}

func TestMigrateSkipsAppliedFiles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT GET_LOCK\(\?, 30\)`).WithArgs(migrationLock).
		WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM schema_migrations WHERE name = \?`).WithArgs("0001_init.sql").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectExec(`SELECT RELEASE_LOCK\(\?\)`).WithArgs(migrationLock).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateLockTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT GET_LOCK`).WillReturnRows(sqlmock.NewRows([]string{"lock"}).AddRow(0))

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestDestroyClearsChildrenFirst(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"tickets", "refresh_tokens", "events", "users"} {
		mock.ExpectExec("DELETE FROM " + table).WillReturnResult(sqlmock.NewResult(0, 3))
	}
	require.NoError(t, Destroy(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
