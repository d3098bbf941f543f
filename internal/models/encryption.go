package models

// At-rest encryption parameters for stored addresses and bodies.
const (
	KeySize       = 32     // AES-256
	NonceSize     = 12     // GCM standard nonce size
	Iterations    = 100000 // PBKDF2 iterations
	LookupKeySize = 32     // HMAC-SHA256 key for lookup hashes
)
