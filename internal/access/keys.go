package access

import (
	"crypto/subtle"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// GenerateKey mints a fresh opaque API key (a uuid, matching the
// teacher's convention of uuid-based ids elsewhere in the system) and
// its bcrypt hash, ready to be stored as a GroupKey/Security record.
func GenerateKey() (plain, hash string, err error) {
	plain = uuid.New().String()
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return plain, string(h), nil
}

// MatchesKey verifies a presented key against a stored hash, falling
// back to a constant-time plain comparison for records created before
// hashing was introduced (plain non-empty, hash empty).
func MatchesKey(presented, hash, plain string) bool {
	if presented == "" {
		return false
	}
	if hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) == nil
	}
	if plain != "" {
		return subtle.ConstantTimeCompare([]byte(presented), []byte(plain)) == 1
	}
	return false
}
