// Package codec implements the reversible payload pipeline applied to data
// frames before they are handed to a relay and after they come back.
//
// Encoding runs the stages in order:
//
//	payload -> compress -> encrypt -> wire bytes
//
// Decoding runs the exact inverse:
//
//	wire bytes -> decrypt -> decompress -> payload
//
// Both stages are independently optional. A stage configured as "none", or an
// encryption stage with an empty key, is the identity.
//
// # Compression
//
//   - gzip: RFC 1952 stream
//   - deflate: raw RFC 1951 stream without zlib header or trailer
//
// # Encryption
//
// The configured key is a passphrase. A 256-bit cipher key is derived from it
// with HKDF-SHA256, using the algorithm name as context. Every encoded frame
// carries a fresh random nonce in front of the ciphertext:
//
//	aes-256-ctr: 16-byte IV || AES-256-CTR(ciphertext)
//	chacha20:    12-byte nonce || ChaCha20(ciphertext)
//
// Stream ciphers do not authenticate. A frame encrypted with a different key
// decrypts to garbage and is normally rejected by the decompression stage.
package codec
