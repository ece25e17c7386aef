package auth

// Identity is the verified subject resolved from a bearer credential.
// It contains provider facts only, no authorization decisions, and is
// re-fetched rather than patched when the credential is re-verified.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}
