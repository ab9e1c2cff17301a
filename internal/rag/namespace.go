package rag

import "strings"

// Namespacer maps a conversation id onto a vector store namespace.
type Namespacer struct {
	Prefix  string
	Default string
}

func DefaultNamespacer() Namespacer {
	return Namespacer{Prefix: "chat-", Default: "shared"}
}

// For returns Prefix+chatID, or the shared namespace when chatID is blank.
func (n Namespacer) For(chatID string) string {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return n.Default
	}
	return n.Prefix + chatID
}

// Namespace uses the default "chat-" prefix.
func Namespace(chatID string) string {
	return DefaultNamespacer().For(chatID)
}
