package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := "-- header\nCREATE TABLE a (x String);\n\n-- second\nCREATE TABLE b (y String);\n"

	stmts, err := splitStatements(input)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE TABLE a (x String)", "CREATE TABLE b (y String)"}, stmts)
}

func TestSplitStatements_RejectsSemicolonInLiteral(t *testing.T) {
	_, err := splitStatements("INSERT INTO a VALUES ('x;y');")
	assert.Error(t, err)
}

func TestSplitStatements_EscapedQuote(t *testing.T) {
	stmts, err := splitStatements("SELECT 'it''s';")
	require.NoError(t, err)
	assert.Equal(t, []string{"SELECT 'it''s'"}, stmts)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/alerts")
	require.NoError(t, err)
	assert.Equal(t, "alerts", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	pg, err := readSQL(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Contains(t, pg[0].body, "CREATE TABLE IF NOT EXISTS notifications")

	ch, err := readSQL(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)

	stmts, err := splitStatements(ch[0].body)
	require.NoError(t, err)
	assert.Len(t, stmts, 1)
}
