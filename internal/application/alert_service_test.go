package application

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alerttrail/alerttrail/internal/domain"
	"github.com/alerttrail/alerttrail/internal/domain/mailscan"
)

type fakeMailSource struct {
	messages []mailscan.Message
	err      error
}

func (s *fakeMailSource) FetchRecent(ctx context.Context, acct *domain.MailAccount, limit int) ([]mailscan.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

func newServiceFixture(t *testing.T, source *fakeMailSource) (*AlertService, *fixture) {
	t.Helper()
	f := newFixture(t, noon)
	svc := NewAlertService(f.storage, source, mailscan.NewScorer(nil), f.dispatch, zerolog.Nop(), nil, 20)
	return svc, f
}

func TestScanAccount_RiskyMessageRaisesAlertAndNotifies(t *testing.T) {
	source := &fakeMailSource{messages: []mailscan.Message{
		{
			UID:     "41",
			Subject: "URGENTE verifica tu cuenta",
			Sender:  "soporte@banco-falso.com",
			Text:    "Tu cuenta será suspendida",
			Attachments: []mailscan.Attachment{
				{Filename: "invoice.exe", Size: 100},
			},
		},
		{UID: "42", Subject: "Minuta", Sender: "colega@empresa.com", Text: "Resumen de la reunión"},
	}}
	svc, f := newServiceFixture(t, source)
	f.subscribe(t)

	acct := &domain.MailAccount{ID: uuid.New(), UserID: f.userID, Email: "victima@empresa.com"}
	created, err := svc.ScanAccount(context.Background(), acct)

	require.NoError(t, err)
	assert.Equal(t, 1, created, "only the risky message raises an alert")
	require.Len(t, f.storage.alerts, 1)
	alert := f.storage.alerts[0]
	assert.Equal(t, "41", alert.MsgUID)
	assert.Equal(t, "URGENTE verifica tu cuenta", alert.Subject)
	assert.NotEmpty(t, alert.Reason)

	require.Equal(t, 1, f.gateway.count())
	assert.Equal(t, "Mail sospechoso", f.gateway.delivered[0].Title)
	assert.Contains(t, f.gateway.delivered[0].Body, "URGENTE verifica tu cuenta")
}

func TestScanAccount_RescannedMessageRaisesNoDuplicateAlert(t *testing.T) {
	source := &fakeMailSource{messages: []mailscan.Message{
		{UID: "41", Subject: "URGENTE verifica tu cuenta", Sender: "x@y.z", Text: "Tu cuenta será suspendida"},
	}}
	svc, f := newServiceFixture(t, source)
	f.subscribe(t)

	acct := &domain.MailAccount{ID: uuid.New(), UserID: f.userID, Email: "a@b.c"}
	created, err := svc.ScanAccount(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// A second sweep returning the same message must change nothing:
	// no second alert row, no second notification.
	created, err = svc.ScanAccount(context.Background(), acct)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Len(t, f.storage.alerts, 1)
	assert.Equal(t, 1, f.gateway.count())
	assert.Zero(t, f.storage.queueLen())
}

func TestScanAccount_NotificationFailureDoesNotLoseAlert(t *testing.T) {
	source := &fakeMailSource{messages: []mailscan.Message{
		{UID: "7", Subject: "urgente", Sender: "x@y.z"},
	}}
	svc, f := newServiceFixture(t, source)
	f.subscribe(t)
	f.gateway.err = errors.New("gateway down")

	acct := &domain.MailAccount{ID: uuid.New(), UserID: f.userID, Email: "a@b.c"}
	created, err := svc.ScanAccount(context.Background(), acct)

	require.NoError(t, err, "a delivery failure must never surface to the scan")
	assert.Equal(t, 1, created)
	assert.Len(t, f.storage.alerts, 1)
	assert.Equal(t, 1, f.storage.queueLen(), "the notification waits in the queue instead")
}

func TestScanAccount_FetchErrorPropagates(t *testing.T) {
	source := &fakeMailSource{err: errors.New("imap: connection refused")}
	svc, f := newServiceFixture(t, source)

	acct := &domain.MailAccount{ID: uuid.New(), UserID: f.userID, Email: "a@b.c"}
	_, err := svc.ScanAccount(context.Background(), acct)
	assert.Error(t, err)
	assert.Empty(t, f.storage.alerts)
}

func TestAnalyzeLog_HighRiskNotifies(t *testing.T) {
	svc, f := newServiceFixture(t, &fakeMailSource{})
	f.subscribe(t)

	report := svc.AnalyzeLog(context.Background(), f.userID, sqliPayload+"\n"+sqliPayload)

	assert.Equal(t, domain.RiskHigh, report.Summary.Risk)
	require.Equal(t, 1, f.gateway.count())
	assert.Equal(t, "Riesgo alto en logs", f.gateway.delivered[0].Title)
}

func TestAnalyzeLog_LowRiskStaysQuiet(t *testing.T) {
	svc, f := newServiceFixture(t, &fakeMailSource{})
	f.subscribe(t)

	report := svc.AnalyzeLog(context.Background(), f.userID, "nothing to see here")

	assert.Equal(t, domain.RiskLow, report.Summary.Risk)
	assert.Zero(t, f.gateway.count())
	assert.Zero(t, f.storage.queueLen())
}

func TestReleaseBacklogs_FlushesEveryQueuedUser(t *testing.T) {
	svc, f := newServiceFixture(t, &fakeMailSource{})
	f.subscribe(t)

	require.NoError(t, f.storage.AppendQueueItem(context.Background(), &domain.NotificationQueueItem{
		ID: uuid.New(), UserID: f.userID, Title: "t", Body: "b", URL: "/u", CreatedAt: noon,
	}))

	require.NoError(t, svc.ReleaseBacklogs(context.Background()))
	assert.Equal(t, 1, f.gateway.count())
	assert.Zero(t, f.storage.queueLen())
}

const sqliPayload = `203.0.113.50 - - GET /products?id=1' OR 1=1 -- HTTP/1.1`
