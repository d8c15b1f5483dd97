package util_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eventreg/eventreg/util"
)

type record struct {
	Name  string
	Value uint64
	Data  []byte
}

func TestPersistAndLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nested", "record.bin")
	want := record{Name: "owner", Value: 7, Data: []byte{1, 2, 3}}
	require.NoError(t, util.Persist(filename, &want))

	var got record
	require.NoError(t, util.Load(filename, &got))
	require.Equal(t, want, got)

	want.Value = 8
	require.NoError(t, util.Persist(filename, &want))
	require.NoError(t, util.Load(filename, &got))
	require.Equal(t, uint64(8), got.Value)
}

func TestLoadMissingFile(t *testing.T) {
	var got record
	err := util.Load(filepath.Join(t.TempDir(), "missing.bin"), &got)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadCorruptFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "record.bin")
	require.NoError(t, os.WriteFile(filename, []byte{0xff}, 0o600))
	var got record
	require.Error(t, util.Load(filename, &got))
}
