package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	value, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	batch := db.NewBatch()
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("a"))
	require.Equal(t, 2, batch.Len())

	_, err = db.Get([]byte("b"))
	require.True(t, errors.Is(err, ErrNotFound), "batch must not apply before Write")

	require.NoError(t, batch.Write())
	value, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)
	_, err = db.Get([]byte("a"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Delete([]byte("b")))
	_, err = db.Get([]byte("b"))
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	got, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestLevelDB(t *testing.T) {
	db, err := NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}

func TestLevelDBOnDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db.Put([]byte("k"), []byte("v")))
	db.Close()

	reopened, err := NewLevelDB(dir)
	require.NoError(t, err)
	t.Cleanup(reopened.Close)
	value, err := reopened.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), value)
}
