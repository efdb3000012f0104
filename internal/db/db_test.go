package db

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/chatcore/internal/models"
	"gorm.io/gorm"
)

func TestIsMySQLDSN(t *testing.T) {
	assert.True(t, IsMySQLDSN("app:apppass@tcp(127.0.0.1:3306)/chat?parseTime=true"))
	assert.True(t, IsMySQLDSN("mysql://app:pw@tcp(db:3306)/chat"))
	assert.False(t, IsMySQLDSN("data/chatcore.db"))
	assert.False(t, IsMySQLDSN("file::memory:?cache=shared"))
}

func TestOpen_SQLiteCreatesDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat.db")

	gdb, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))

	for _, table := range []string{"assistants", "topics", "messages", "files"} {
		assert.True(t, gdb.Migrator().HasTable(table), table)
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpen_RecordNotFoundIsNotLogged(t *testing.T) {
	var out bytes.Buffer
	gdb, err := OpenWithLog(filepath.Join(t.TempDir(), "chat.db"), &out)
	require.NoError(t, err)
	require.NoError(t, Migrate(gdb))
	out.Reset()

	var rec models.FileRecord
	err = gdb.Where("id = ?", "missing").First(&rec).Error
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.Empty(t, out.String())

	// real failures still reach the log
	var n int
	require.Error(t, gdb.Raw("SELECT count(*) FROM no_such_table").Scan(&n).Error)
	assert.Contains(t, out.String(), "no_such_table")
}
