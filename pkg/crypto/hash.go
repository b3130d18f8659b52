package crypto

import (
	"crypto/sha512"
	"encoding/hex"
)

// SHA512Hash generates a lowercase hex SHA-512 digest of the input string.
// Used for gateway wire signing, where the field concatenation order is
// dictated by the gateway's protocol, not by this function.
func SHA512Hash(input string) string {
	hash := sha512.Sum512([]byte(input))
	return hex.EncodeToString(hash[:])
}
