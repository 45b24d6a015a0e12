package encrypt

// DefaultKey is the key used when the configuration does not provide one.
const DefaultKey = "UASSET"

// XORKeyStream encrypts or decrypts buf in place by XOR-ing it with key
// repeated over its length. Applying it twice restores the input.
func XORKeyStream(buf []byte, key []byte) {
	if len(key) == 0 {
		return
	}
	for i := range buf {
		buf[i] ^= key[i%len(key)]
	}
}
