package mailscan

import (
	"fmt"
	"io"
	"strings"

	// Registers decoders for the legacy charsets found in real inboxes
	// (iso-8859-1, windows-1252, ...).
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// ParseMessage reads one raw RFC 822 message into the scorer's input
// shape. Decoding is best-effort: unknown charsets and broken parts
// degrade to whatever could be read, they never abort the whole message.
func ParseMessage(r io.Reader) (Message, error) {
	mr, err := mail.CreateReader(r)
	if mr == nil {
		return Message{}, fmt.Errorf("parse message: %w", err)
	}

	var msg Message
	msg.Subject, _ = mr.Header.Subject()
	msg.Sender = senderOf(mr.Header)
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed part ends the walk; whatever was collected so
			// far still gets scored.
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := header.ContentType()
			body, _ := io.ReadAll(part.Body)
			switch contentType {
			case "text/plain":
				msg.Text += string(body)
			case "text/html":
				msg.HTML += string(body)
			}
		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			contentType, _, _ := header.ContentType()
			body, _ := io.ReadAll(part.Body)
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        len(body),
			})
		}
	}

	return msg, nil
}

// senderOf renders the From header as a display string, falling back to
// the raw header value when it cannot be parsed as an address list.
func senderOf(h mail.Header) string {
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		raw, _ := h.Text("From")
		return strings.TrimSpace(raw)
	}
	return addrs[0].String()
}
