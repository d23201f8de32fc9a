package storage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnappyStorage_AddAndGet(t *testing.T) {
	s := NewSnappyStorage()
	require.True(t, s.Empty())

	for i := 0; i < BlockSize+1; i++ {
		require.Equal(t, i, s.Add(fmt.Sprintf("record %d", i)))
	}
	require.Equal(t, BlockSize+1, s.Count())
	require.Len(t, s.blocks, 1)
	require.Len(t, s.writeList, 1)

	got, err := s.Get(BlockSize)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("record %d", BlockSize), got)

	for _, i := range []int{0, 1, 199, BlockSize - 1} {
		got, err := s.Get(i)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("record %d", i), got)
	}
	require.Equal(t, 0, s.readIndex)
}

func TestSnappyStorage_OutOfRange(t *testing.T) {
	s := NewSnappyStorage()
	s.Add("only")
	_, err := s.Get(1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = s.Get(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSnappyStorage_Clear(t *testing.T) {
	s := NewSnappyStorage()
	for i := 0; i < BlockSize*2; i++ {
		s.Add("x")
	}
	_, err := s.Get(3)
	require.NoError(t, err)

	s.Clear()
	require.True(t, s.Empty())
	require.Equal(t, 0, s.Add("again"))
	got, err := s.Get(0)
	require.NoError(t, err)
	require.Equal(t, "again", got)
}

func TestCompress_BinarySafe(t *testing.T) {
	records := []string{"", "a\x00b", "line\n", "plain"}
	got, err := Decompress(Compress(records))
	require.NoError(t, err)
	require.Equal(t, records, got)
}

func TestDecompress_Corrupt(t *testing.T) {
	_, err := Decompress([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	require.Error(t, err)
}

func TestVectorStorage(t *testing.T) {
	v := NewVectorStorage()
	require.True(t, v.Empty())
	require.Equal(t, 0, v.Add("a"))
	require.Equal(t, 1, v.Add("b"))
	got, err := v.Get(1)
	require.NoError(t, err)
	require.Equal(t, "b", got)
	_, err = v.Get(2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	v.Clear()
	require.Equal(t, 0, v.Count())
}
