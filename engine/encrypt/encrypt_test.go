package encrypt

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXORKeyStreamIsSymmetric(t *testing.T) {
	plain := []byte("settings = true")
	buf := append([]byte(nil), plain...)

	XORKeyStream(buf, []byte(DefaultKey))
	assert.NotEqual(t, plain, buf)
	XORKeyStream(buf, []byte(DefaultKey))
	assert.Equal(t, plain, buf)

	XORKeyStream(buf, nil)
	assert.Equal(t, plain, buf)
}

func TestReaderRandomAccess(t *testing.T) {
	plain := bytes.Repeat([]byte("0123456789abcdef-"), 100)
	key, salt := []byte(DefaultKey), []byte("ui")

	sealed, err := Seal(plain, key, salt)
	require.NoError(t, err)
	require.Len(t, sealed, len(plain))
	assert.NotEqual(t, plain, sealed)

	r, err := NewReader(bytes.NewReader(sealed), int64(len(sealed)), key, salt)
	require.NoError(t, err)
	assert.Equal(t, int64(len(plain)), r.Size())

	for _, off := range []int64{0, 1, 15, 16, 17, 500, int64(len(plain)) - 3} {
		buf := make([]byte, 3)
		n, err := r.ReadAt(buf, off)
		require.NoError(t, err)
		assert.Equal(t, plain[off:off+int64(n)], buf[:n], "offset %d", off)
	}

	_, err = r.Seek(0, io.SeekStart)
	require.NoError(t, err)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, plain, all)
}

func TestReaderKeyDependsOnSalt(t *testing.T) {
	plain := []byte("bundle bytes")
	key := []byte(DefaultKey)

	sealed, err := Seal(plain, key, []byte("a"))
	require.NoError(t, err)

	r, err := NewReader(bytes.NewReader(sealed), int64(len(sealed)), key, []byte("b"))
	require.NoError(t, err)
	out := make([]byte, len(plain))
	_, err = r.ReadAt(out, 0)
	require.NoError(t, err)
	assert.NotEqual(t, plain, out)
}

func TestReaderErrors(t *testing.T) {
	_, err := NewReader(bytes.NewReader(nil), 0, nil, nil)
	assert.Error(t, err)

	r, err := NewReader(bytes.NewReader([]byte{1, 2}), 2, []byte("k"), nil)
	require.NoError(t, err)
	_, err = r.ReadAt(make([]byte, 1), -1)
	assert.Error(t, err)
	_, err = r.ReadAt(make([]byte, 1), 2)
	assert.ErrorIs(t, err, io.EOF)
	_, err = r.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestAddCounterCarries(t *testing.T) {
	var c [16]byte
	c[15] = 0xff
	addCounter(&c, 1)
	assert.Equal(t, byte(0x00), c[15])
	assert.Equal(t, byte(0x01), c[14])
}
