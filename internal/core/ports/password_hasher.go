package ports

// PasswordHasher hashes and verifies passwords. Each Hash call uses a fresh
// salt; Check never errors and reports false for any mismatch or bad input.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) bool
}
