package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20"
)

func TestPipelineRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":  {},
		"text":   []byte(`{"id":42,"text":"Hello World"}`),
		"binary": {0x00, 0xFF, 0x7F, 0x80, 0x01},
		"large":  bytes.Repeat([]byte("relay "), 20000),
	}

	for _, compression := range []Compression{CompressionNone, CompressionGzip, CompressionDeflate} {
		for _, encryption := range []Encryption{EncryptionNone, EncryptionAES256CTR, EncryptionChaCha20} {
			cfg := Config{Compression: compression, Encryption: encryption, Key: "LaLaLaLaLaLaLaLaLa"}
			p, err := New(cfg)
			require.NoError(t, err)

			for name, payload := range payloads {
				t.Run(string(compression)+"/"+string(encryption)+"/"+name, func(t *testing.T) {
					encoded, err := p.Encode(payload)
					require.NoError(t, err)

					decoded, err := p.Decode(encoded)
					require.NoError(t, err)
					assert.True(t, bytes.Equal(payload, decoded), "round trip mismatch")
				})
			}
		}
	}
}

func TestPipelineStageOrder(t *testing.T) {
	p, err := New(Config{Compression: CompressionGzip, Encryption: EncryptionChaCha20, Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gzip", "chacha20"}, p.Stages())

	// Encrypted output must not expose the gzip magic at the front.
	encoded, err := p.Encode([]byte("hello"))
	require.NoError(t, err)

	plain, err := New(Config{Compression: CompressionGzip})
	require.NoError(t, err)
	gz, err := plain.Encode([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, gz[:2])
	assert.Len(t, encoded, chacha20.NonceSize+len(gz))
}

func TestPipelineIdentity(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero config", cfg: Config{}},
		{name: "explicit none", cfg: Config{Compression: CompressionNone, Encryption: EncryptionNone}},
		{name: "cipher without key", cfg: Config{Encryption: EncryptionAES256CTR}},
		{name: "key without cipher", cfg: Config{Key: "secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Empty(t, p.Stages())

			out, err := p.Encode([]byte("abc"))
			require.NoError(t, err)
			assert.Equal(t, []byte("abc"), out)
		})
	}
}

func TestPipelineUnsupportedAlgorithm(t *testing.T) {
	_, err := New(Config{Compression: "lz4"})
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = New(Config{Encryption: "rot13", Key: "k"})
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestParseSelectors(t *testing.T) {
	c, err := ParseCompression(" GZIP ")
	require.NoError(t, err)
	assert.Equal(t, CompressionGzip, c)

	c, err = ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)

	e, err := ParseEncryption("AES-256-CTR")
	require.NoError(t, err)
	assert.Equal(t, EncryptionAES256CTR, e)
}

func TestPipelineDecodeMalformed(t *testing.T) {
	t.Run("GarbageGzip", func(t *testing.T) {
		p, err := New(Config{Compression: CompressionGzip})
		require.NoError(t, err)

		_, err = p.Decode([]byte("definitely not gzip"))
		var codecErr *Error
		require.True(t, errors.As(err, &codecErr))
		assert.Equal(t, "decode", codecErr.Op)
		assert.Equal(t, "gzip", codecErr.Stage)
	})

	t.Run("TruncatedCiphertext", func(t *testing.T) {
		p, err := New(Config{Encryption: EncryptionAES256CTR, Key: "k"})
		require.NoError(t, err)

		_, err = p.Decode([]byte{1, 2, 3})
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("WrongKey", func(t *testing.T) {
		sender, err := New(Config{Compression: CompressionGzip, Encryption: EncryptionAES256CTR, Key: "right"})
		require.NoError(t, err)
		receiver, err := New(Config{Compression: CompressionGzip, Encryption: EncryptionAES256CTR, Key: "wrong"})
		require.NoError(t, err)

		encoded, err := sender.Encode(bytes.Repeat([]byte("secret"), 10))
		require.NoError(t, err)

		_, err = receiver.Decode(encoded)
		assert.Error(t, err)
	})
}

func TestEncodeUsesFreshNonce(t *testing.T) {
	p, err := New(Config{Encryption: EncryptionChaCha20, Key: "k"})
	require.NoError(t, err)

	a, err := p.Encode([]byte("same"))
	require.NoError(t, err)
	b, err := p.Encode([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDeriveKey(t *testing.T) {
	a, err := DeriveKey(EncryptionAES256CTR, "pass")
	require.NoError(t, err)
	b, err := DeriveKey(EncryptionChaCha20, "pass")
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b, "keys must be bound to the algorithm")
}
