package chathub

// Client is the interface for any type of UI connection (e.g., WebSocket).
// It abstracts the underlying communication mechanism, allowing the hub to manage
// different client types uniformly.
type Client interface {
	// GetClientID identifies the connection; one user may hold several.
	GetClientID() string
	// GetUserID returns the identifier of the user behind the connection.
	GetUserID() string
	// GetConversationID returns the conversation of the open session, if any.
	GetConversationID() string

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's session and connection.
	Close()
}
