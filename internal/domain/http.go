package domain

// CreateSessionRequest is the body of POST /api/v1/sessions. Every field is optional.
type CreateSessionRequest struct {
	Title    string `json:"title" binding:"max=200"`
	IsPublic *bool  `json:"is_public"`
	Owner    string `json:"owner" binding:"max=64"`
}

// CreateSessionResponse returns the new session and the token that lets its
// creator publish into it and close it.
type CreateSessionResponse struct {
	Session        Session `json:"session"`
	PublishToken   string  `json:"publish_token"`
	TokenExpiresAt int64   `json:"token_expires_at"`
}

// Defaults applied to omitted create fields.
const (
	DefaultSessionTitle = "Untitled"
	DefaultSessionOwner = "anon"
)
