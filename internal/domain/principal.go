package domain

// Principal is the authenticated caller as established by the bearer token.
// Email is normalized with NormalizeEmail.
type Principal struct {
	UserID string
	Email  string
}
