package assistant

import "context"

// Client is the external chat assistant collaborator.
type Client interface {
	Chat(ctx context.Context, tenant, message string) (string, error)
}
