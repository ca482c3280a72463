package service

// PasswordService hashes plaintext secrets into self-describing encoded
// digests and verifies candidates against them. Hashing happens exactly once,
// when a password is set or changed; stored digests are never rehashed on
// unrelated updates.
type PasswordService interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}
