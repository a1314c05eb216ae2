package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Codec errors.
var (
	// ErrUnsupportedAlgorithm indicates an unknown compression or encryption selector.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrTruncated indicates wire bytes shorter than the cipher nonce.
	ErrTruncated = errors.New("ciphertext truncated")

	// ErrTooLarge indicates a decompressed payload above MaxDecodedSize.
	ErrTooLarge = errors.New("decoded payload too large")
)

// MaxDecodedSize bounds the output of the decompression stage (16 MB).
const MaxDecodedSize = 16 << 20

// Error is returned when a pipeline stage fails on a payload.
type Error struct {
	// Op is "encode" or "decode".
	Op string

	// Stage names the failing stage (e.g. "gzip", "aes-256-ctr").
	Stage string

	// Err is the underlying failure.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec %s (%s): %v", e.Op, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Compression selects the compression stage.
type Compression string

const (
	CompressionNone    Compression = "none"
	CompressionGzip    Compression = "gzip"
	CompressionDeflate Compression = "deflate"
)

// ParseCompression normalizes a compression selector. The empty string means none.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, CompressionDeflate:
		return c, nil
	default:
		return "", fmt.Errorf("%w: compression %q", ErrUnsupportedAlgorithm, s)
	}
}

// Encryption selects the encryption stage.
type Encryption string

const (
	EncryptionNone      Encryption = "none"
	EncryptionAES256CTR Encryption = "aes-256-ctr"
	EncryptionChaCha20  Encryption = "chacha20"
)

// ParseEncryption normalizes an encryption selector. The empty string means none.
func ParseEncryption(s string) (Encryption, error) {
	switch e := Encryption(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EncryptionNone:
		return EncryptionNone, nil
	case EncryptionAES256CTR, EncryptionChaCha20:
		return e, nil
	default:
		return "", fmt.Errorf("%w: encryption %q", ErrUnsupportedAlgorithm, s)
	}
}

// Config configures a Pipeline.
type Config struct {
	// Compression is the compression selector (default: none).
	Compression Compression `yaml:"compression"`

	// Encryption is the cipher selector (default: none).
	Encryption Encryption `yaml:"encryption"`

	// Key is the encryption passphrase. Empty disables encryption.
	Key string `yaml:"key"`
}

// stage is one reversible step of the pipeline.
type stage interface {
	name() string
	apply(in []byte) ([]byte, error)
	invert(in []byte) ([]byte, error)
}

// Pipeline runs compression and encryption in a fixed order.
// A Pipeline is immutable and safe for concurrent use.
type Pipeline struct {
	stages []stage
}

// New builds a pipeline. Unknown selectors fail with ErrUnsupportedAlgorithm.
func New(cfg Config) (*Pipeline, error) {
	compression, err := ParseCompression(string(cfg.Compression))
	if err != nil {
		return nil, err
	}
	encryption, err := ParseEncryption(string(cfg.Encryption))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{}

	switch compression {
	case CompressionGzip:
		p.stages = append(p.stages, gzipStage{})
	case CompressionDeflate:
		p.stages = append(p.stages, deflateStage{})
	}

	if encryption != EncryptionNone && cfg.Key != "" {
		s, err := newCipherStage(encryption, cfg.Key)
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, s)
	}

	return p, nil
}

// Identity returns a pipeline that passes payloads through unchanged.
func Identity() *Pipeline {
	return &Pipeline{}
}

// Encode compresses then encrypts payload.
func (p *Pipeline) Encode(payload []byte) ([]byte, error) {
	out := payload
	for _, s := range p.stages {
		next, err := s.apply(out)
		if err != nil {
			return nil, &Error{Op: "encode", Stage: s.name(), Err: err}
		}
		out = next
	}
	return out, nil
}

// Decode decrypts then decompresses data.
func (p *Pipeline) Decode(data []byte) ([]byte, error) {
	out := data
	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		next, err := s.invert(out)
		if err != nil {
			return nil, &Error{Op: "decode", Stage: s.name(), Err: err}
		}
		out = next
	}
	return out, nil
}

// Stages returns the stage names in encode order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.name()
	}
	return names
}
