package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keyLength = 32
	info      = "anima-content bundle stream"
)

var errNegativeOffset = errors.New("encrypt: negative offset")

// Reader decrypts an AES-CTR encrypted source. Because CTR is a pure key
// stream every offset can be decrypted on its own, so the reader supports
// random access and can back an archive directly.
type Reader struct {
	src   io.ReaderAt
	size  int64
	block cipher.Block
	iv    [aes.BlockSize]byte
	off   int64
}

// NewReader wraps src, which holds size encrypted bytes. The stream key and
// IV are derived from key with HKDF-SHA256 using salt, which is the bundle
// name, so every bundle gets its own key stream.
func NewReader(src io.ReaderAt, size int64, key, salt []byte) (*Reader, error) {
	block, iv, err := derive(key, salt)
	if err != nil {
		return nil, err
	}
	return &Reader{
		src:   src,
		size:  size,
		block: block,
		iv:    iv,
	}, nil
}

// Seal encrypts plain so that NewReader with the same key and salt yields it back.
func Seal(plain, key, salt []byte) ([]byte, error) {
	block, iv, err := derive(key, salt)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(plain))
	xorAt(block, iv, out, plain, 0)
	return out, nil
}

func (r *Reader) Size() int64 {
	return r.size
}

func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= r.size {
		return 0, io.EOF
	}
	n, err := r.src.ReadAt(p, off)
	if n > 0 {
		xorAt(r.block, r.iv, p[:n], p[:n], off)
	}
	return n, err
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.off + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("encrypt: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errNegativeOffset
	}
	r.off = abs
	return abs, nil
}

func derive(key, salt []byte) (cipher.Block, [aes.BlockSize]byte, error) {
	var iv [aes.BlockSize]byte
	if len(key) == 0 {
		return nil, iv, errors.New("encrypt: empty key")
	}

	kdf := hkdf.New(sha256.New, key, salt, []byte(info))
	material := make([]byte, keyLength+aes.BlockSize)
	if _, err := io.ReadFull(kdf, material); err != nil {
		return nil, iv, err
	}
	block, err := aes.NewCipher(material[:keyLength])
	if err != nil {
		return nil, iv, err
	}
	copy(iv[:], material[keyLength:])
	return block, iv, nil
}

// xorAt applies the key stream starting at byte offset off of the stream.
func xorAt(block cipher.Block, iv [aes.BlockSize]byte, dst, src []byte, off int64) {
	counter := iv
	addCounter(&counter, uint64(off/aes.BlockSize))
	stream := cipher.NewCTR(block, counter[:])

	if skip := int(off % aes.BlockSize); skip > 0 {
		var discard [aes.BlockSize]byte
		stream.XORKeyStream(discard[:skip], discard[:skip])
	}
	stream.XORKeyStream(dst, src)
}

// addCounter adds n to the big-endian 128 bit counter.
func addCounter(counter *[aes.BlockSize]byte, n uint64) {
	for i := aes.BlockSize - 1; i >= 0 && n > 0; i-- {
		sum := uint64(counter[i]) + (n & 0xff)
		counter[i] = byte(sum)
		n = (n >> 8) + (sum >> 8)
	}
}
