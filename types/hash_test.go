package types

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashSize(t *testing.T) {
	require.Equal(t, 32, HashSize)
	require.Equal(t, sha256.Size, HashSize)
}

func TestHashBytes(t *testing.T) {
	t.Run("basic hash", func(t *testing.T) {
		h := HashBytes([]byte("test data"))
		require.Len(t, h, HashSize)
	})

	t.Run("deterministic", func(t *testing.T) {
		h1 := HashBytes([]byte("test"))
		h2 := HashBytes([]byte("test"))
		require.True(t, h1.Equal(h2))
	})

	t.Run("different inputs differ", func(t *testing.T) {
		h1 := HashBytes([]byte("a"))
		h2 := HashBytes([]byte("b"))
		require.False(t, h1.Equal(h2))
	})

	t.Run("empty data matches EmptyHash", func(t *testing.T) {
		h := HashBytes([]byte{})
		require.True(t, h.Equal(EmptyHash()))
	})

	t.Run("matches sha256", func(t *testing.T) {
		data := []byte("hello world")
		h := HashBytes(data)
		expected := sha256.Sum256(data)
		require.Equal(t, expected[:], h.Bytes())
	})
}

func TestHashConcat(t *testing.T) {
	t.Run("basic concat", func(t *testing.T) {
		h1 := HashBytes([]byte("left"))
		h2 := HashBytes([]byte("right"))
		result := HashConcat(h1, h2)
		require.Len(t, result, HashSize)
	})

	t.Run("order matters", func(t *testing.T) {
		h1 := HashBytes([]byte("a"))
		h2 := HashBytes([]byte("b"))
		require.False(t, HashConcat(h1, h2).Equal(HashConcat(h2, h1)))
	})

	t.Run("deterministic", func(t *testing.T) {
		h1 := HashBytes([]byte("left"))
		h2 := HashBytes([]byte("right"))
		require.True(t, HashConcat(h1, h2).Equal(HashConcat(h1, h2)))
	})

	t.Run("matches manual sha256 of concatenation", func(t *testing.T) {
		h1 := HashBytes([]byte("left"))
		h2 := HashBytes([]byte("right"))
		result := HashConcat(h1, h2)

		concat := append(h1.Bytes(), h2.Bytes()...)
		expected := sha256.Sum256(concat)
		require.Equal(t, expected[:], result.Bytes())
	})
}

func TestHashOfRoots(t *testing.T) {
	t.Run("empty sequence is EmptyHash", func(t *testing.T) {
		require.True(t, HashOfRoots(nil).Equal(EmptyHash()))
	})

	t.Run("single hash folds to itself via no concat", func(t *testing.T) {
		h := HashBytes([]byte("only"))
		require.True(t, HashOfRoots([]Hash{h}).Equal(h))
	})

	t.Run("order matters", func(t *testing.T) {
		a := HashBytes([]byte("a"))
		b := HashBytes([]byte("b"))
		require.False(t, HashOfRoots([]Hash{a, b}).Equal(HashOfRoots([]Hash{b, a})))
	})
}

func TestEmptyHash(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		require.True(t, EmptyHash().Equal(EmptyHash()))
	})

	t.Run("known value", func(t *testing.T) {
		h := EmptyHash()
		require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h.String())
	})
}

func BenchmarkHashBytes(b *testing.B) {
	data := make([]byte, 256)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		HashBytes(data)
	}
}

func BenchmarkHashConcat(b *testing.B) {
	h1 := HashBytes([]byte("left"))
	h2 := HashBytes([]byte("right"))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		HashConcat(h1, h2)
	}
}
