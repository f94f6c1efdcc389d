package ports

// TokenService issues and inspects signed identity tokens.
type TokenService interface {
	Issue(subjectID, email string) (string, error)
	// Validate reports whether token is correctly signed, unexpired and was
	// issued for expectedSubjectID.
	Validate(token, expectedSubjectID string) bool
	SubjectOf(token string) (string, error)
	EmailOf(token string) (string, error)
}
