package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// keySize is the derived key size for both ciphers.
const keySize = 32

// cipherStage is a stream cipher with a random per-frame nonce prefix.
type cipherStage struct {
	algorithm Encryption
	key       []byte
	nonceSize int
	stream    func(key, nonce []byte) (cipher.Stream, error)
}

func newCipherStage(algorithm Encryption, passphrase string) (*cipherStage, error) {
	key, err := DeriveKey(algorithm, passphrase)
	if err != nil {
		return nil, err
	}

	s := &cipherStage{algorithm: algorithm, key: key}
	switch algorithm {
	case EncryptionAES256CTR:
		s.nonceSize = aes.BlockSize
		s.stream = func(key, iv []byte) (cipher.Stream, error) {
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, err
			}
			return cipher.NewCTR(block, iv), nil
		}
	case EncryptionChaCha20:
		s.nonceSize = chacha20.NonceSize
		s.stream = func(key, nonce []byte) (cipher.Stream, error) {
			return chacha20.NewUnauthenticatedCipher(key, nonce)
		}
	default:
		return nil, fmt.Errorf("%w: encryption %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return s, nil
}

// DeriveKey expands a passphrase into a 256-bit key bound to the algorithm name.
func DeriveKey(algorithm Encryption, passphrase string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("tdrs "+string(algorithm)))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *cipherStage) name() string { return string(s.algorithm) }

func (s *cipherStage) apply(in []byte) ([]byte, error) {
	out := make([]byte, s.nonceSize+len(in))
	nonce := out[:s.nonceSize]
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	stream, err := s.stream(s.key, nonce)
	if err != nil {
		return nil, err
	}
	stream.XORKeyStream(out[s.nonceSize:], in)
	return out, nil
}

func (s *cipherStage) invert(in []byte) ([]byte, error) {
	if len(in) < s.nonceSize {
		return nil, fmt.Errorf("%w: %d < %d bytes", ErrTruncated, len(in), s.nonceSize)
	}
	stream, err := s.stream(s.key, in[:s.nonceSize])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in)-s.nonceSize)
	stream.XORKeyStream(out, in[s.nonceSize:])
	return out, nil
}
