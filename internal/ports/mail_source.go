package ports

import (
	"context"

	"github.com/alerttrail/alerttrail/internal/domain"
	"github.com/alerttrail/alerttrail/internal/domain/mailscan"
)

// MailSource fetches recent messages from a user's mailbox, already parsed
// into the scorer's input shape. Implementations prefer unread messages and
// fall back to the most recent ones.
type MailSource interface {
	FetchRecent(ctx context.Context, acct *domain.MailAccount, limit int) ([]mailscan.Message, error)
}
