package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"002_disputes.sql": {Data: []byte("CREATE TABLE b ();")},
		"001_init.sql":     {Data: []byte("CREATE TABLE a ();")},
		"README.md":        {Data: []byte("не миграция")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "001_init.sql", migrations[0].Name)
	assert.Equal(t, "002_disputes.sql", migrations[1].Name)
	assert.Len(t, migrations[0].Checksum, 64)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestPending(t *testing.T) {
	migrations, err := LoadMigrations(fstest.MapFS{
		"001_init.sql":     {Data: []byte("CREATE TABLE a ();")},
		"002_disputes.sql": {Data: []byte("CREATE TABLE b ();")},
	})
	require.NoError(t, err)

	pending, err := Pending(migrations, map[string]string{})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	pending, err = Pending(migrations, map[string]string{"001_init.sql": migrations[0].Checksum})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "002_disputes.sql", pending[0].Name)

	// Запись без контрольной суммы осталась от старой таблицы миграций.
	pending, err = Pending(migrations, map[string]string{"001_init.sql": "", "002_disputes.sql": ""})
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = Pending(migrations, map[string]string{"001_init.sql": "deadbeef"})
	assert.Error(t, err)
}
