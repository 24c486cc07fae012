package mailbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/alerttrail/alerttrail/internal/domain"
	"github.com/alerttrail/alerttrail/internal/domain/mailscan"
)

// IMAPSource implements ports.MailSource against a plain IMAP server.
// Unread messages are preferred; when there are none, the most recent
// messages are fetched instead so a mailbox never goes completely
// unwatched.
type IMAPSource struct {
	timeout time.Duration
}

// NewIMAPSource builds the source. timeout bounds each network dial and
// command round-trip.
func NewIMAPSource(timeout time.Duration) *IMAPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &IMAPSource{timeout: timeout}
}

// FetchRecent connects, selects INBOX and returns up to limit parsed
// messages. Messages whose body cannot be parsed are skipped, never fatal.
func (s *IMAPSource) FetchRecent(ctx context.Context, acct *domain.MailAccount, limit int) ([]mailscan.Message, error) {
	if limit <= 0 {
		limit = 20
	}

	c, err := s.dial(acct)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if err := c.Login(acct.Username, acct.Password); err != nil {
		return nil, fmt.Errorf("imap login %s: %w", acct.Email, err)
	}

	// Read-write select: the body fetch below marks messages \Seen, so
	// the next sweep's unseen search skips everything already scanned.
	mbox, err := c.Select("INBOX", false)
	if err != nil {
		return nil, fmt.Errorf("imap select inbox: %w", err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	seqSet, err := s.pickMessages(c, mbox, limit)
	if err != nil {
		return nil, err
	}
	if seqSet == nil {
		return nil, nil
	}

	return s.fetch(ctx, c, seqSet)
}

func (s *IMAPSource) dial(acct *domain.MailAccount) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", acct.IMAPServer, acct.IMAPPort)

	var c *client.Client
	var err error
	if acct.UseSSL {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	c.Timeout = s.timeout
	return c, nil
}

// pickMessages prefers unseen messages, falling back to the newest ones.
func (s *IMAPSource) pickMessages(c *client.Client, mbox *imap.MailboxStatus, limit int) (*imap.SeqSet, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}

	seqSet := new(imap.SeqSet)
	if len(ids) > 0 {
		if len(ids) > limit {
			ids = ids[len(ids)-limit:]
		}
		seqSet.AddNum(ids...)
		return seqSet, nil
	}

	from := uint32(1)
	if mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqSet.AddRange(from, mbox.Messages)
	return seqSet, nil
}

func (s *IMAPSource) fetch(ctx context.Context, c *client.Client, seqSet *imap.SeqSet) ([]mailscan.Message, error) {
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, ch)
	}()

	messages := make([]mailscan.Message, 0)
	for raw := range ch {
		if err := ctx.Err(); err != nil {
			return messages, err
		}
		body := raw.GetBody(section)
		if body == nil {
			continue
		}
		parsed, err := mailscan.ParseMessage(body)
		if err != nil {
			// One broken message never aborts the sweep.
			continue
		}
		parsed.UID = strconv.FormatUint(uint64(raw.Uid), 10)
		messages = append(messages, parsed)
	}

	if err := <-done; err != nil {
		return messages, fmt.Errorf("imap fetch: %w", err)
	}
	return messages, nil
}
