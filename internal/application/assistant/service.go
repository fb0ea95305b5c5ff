package assistant

import (
	"context"

	"github.com/propcheck/inspections/internal/domain/assistant"
	"github.com/propcheck/inspections/internal/domain/authz"
)

// Service forwards chat messages to the external assistant. No resource
// lock applies; the kernel still checks identity and role.
type Service struct {
	client assistant.Client
}

func NewService(client assistant.Client) *Service {
	return &Service{client: client}
}

func (s *Service) SendMessage(ctx context.Context, sc *authz.SecurityContext, message string) (string, error) {
	if err := authz.Authorize(authz.ActionChatSend, nil, sc); err != nil {
		return "", err
	}
	return s.client.Chat(ctx, sc.TenantID, message)
}
