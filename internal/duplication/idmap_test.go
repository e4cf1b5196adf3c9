package duplication

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDMap(t *testing.T) {
	m := NewIDMap()
	require.NoError(t, m.Put("taxa", 5, 50))
	require.NoError(t, m.Put("taxa", 1, 10))
	require.Error(t, m.Put("taxa", 5, 51))

	dst, err := m.Lookup("taxa", 5)
	require.NoError(t, err)
	require.Equal(t, int64(50), dst)
	require.Equal(t, 2, m.Len("taxa"))
	require.Equal(t, []int64{1, 5}, m.Sources("taxa"))

	_, err = m.Lookup("taxa", 7)
	require.ErrorIs(t, err, ErrMissingMapping)
	var mm *MissingMappingError
	require.True(t, errors.As(err, &mm))
	require.Equal(t, "taxa", mm.Table)
	require.Equal(t, int64(7), mm.ID)
	require.Empty(t, m.Sources("matrices"))
}

func TestDuplicationErrorMessage(t *testing.T) {
	base := errors.New("boom")
	require.Equal(t, "duplication blob error at media_files row 4: boom",
		(&DuplicationError{Kind: KindBlob, Table: "media_files", SourceID: 4, Err: base}).Error())
	require.Equal(t, "duplication database error at taxa: boom",
		(&DuplicationError{Kind: KindDatabase, Table: "taxa", Err: base}).Error())
	require.Equal(t, "duplication configuration error: boom", configErr("", base).Error())

	wrapped := classify(KindDatabase, "cells", 2, &MissingMappingError{Table: "matrices", ID: 1})
	var de *DuplicationError
	require.ErrorAs(t, wrapped, &de)
	require.Equal(t, KindMissingMapping, de.Kind)
	require.Same(t, wrapped, classify(KindBlob, "x", 0, wrapped))
}

func TestConfigOverridePrecedence(t *testing.T) {
	cfg := Config{Overrides: map[string]any{"user_id": 1, "taxa.user_id": 2}}
	v, ok := cfg.override("taxa", "user_id")
	require.True(t, ok)
	require.Equal(t, 2, v)
	v, ok = cfg.override("matrices", "user_id")
	require.True(t, ok)
	require.Equal(t, 1, v)
	_, ok = cfg.override("matrices", "title")
	require.False(t, ok)
}
