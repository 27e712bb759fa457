package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louhi-db/louhi/internal/hrana"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_CreateDatabase_Idempotent(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateDatabase("test"))
	require.NoError(t, m.CreateDatabase("test"))

	db, err := m.Database("test")
	require.NoError(t, err)
	assert.NotNil(t, db)
}

func TestManager_CreateDatabase_RejectsBadName(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.CreateDatabase("../escape"))
	assert.Error(t, m.CreateDatabase(""))
}

func TestManager_Database_Unknown(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Database("nope")
	assert.ErrorIs(t, err, ErrUnknownDatabase)
}

func TestDB_Execute_SelectOne(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateDatabase("test"))
	db, err := m.Database("test")
	require.NoError(t, err)

	res := db.Execute(hrana.Stmt{SQL: "SELECT 1", WantRows: true})
	require.Equal(t, "ok", res.Type)
	require.NotNil(t, res.Response)
	require.Len(t, res.Response.Rows, 1)
	require.Len(t, res.Response.Rows[0], 1)
	assert.Equal(t, "integer", res.Response.Rows[0][0].Type)
	assert.Equal(t, "1", res.Response.Rows[0][0].Value)
}

func TestDB_Execute_StatementErrorIsPerStep(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateDatabase("test"))
	db, err := m.Database("test")
	require.NoError(t, err)

	res := db.Execute(hrana.Stmt{SQL: "SELECT * FROM missing", WantRows: true})
	require.Equal(t, "error", res.Type)
	require.NotNil(t, res.Error)
	assert.NotEmpty(t, res.Error.Message)
}

func TestDB_Execute_WriteStatement(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateDatabase("test"))
	db, err := m.Database("test")
	require.NoError(t, err)

	res := db.Execute(hrana.Stmt{SQL: "CREATE TABLE t (x INTEGER)"})
	require.Equal(t, "ok", res.Type)

	res = db.Execute(hrana.Stmt{SQL: "INSERT INTO t VALUES (1), (2)"})
	require.Equal(t, "ok", res.Type)
	assert.Equal(t, int64(2), res.Response.AffectedRowCount)
}
