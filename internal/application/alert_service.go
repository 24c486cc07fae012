package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alerttrail/alerttrail/internal/domain"
	"github.com/alerttrail/alerttrail/internal/domain/logscan"
	"github.com/alerttrail/alerttrail/internal/domain/mailscan"
	"github.com/alerttrail/alerttrail/internal/metrics"
	"github.com/alerttrail/alerttrail/internal/ports"
)

// AlertService runs the detection pipeline: it pulls recent messages from
// monitored mailboxes, scores them, persists an alert for every risky one
// and hands the alert to the dispatcher. Log analysis follows the same
// path with the log analyzer in front.
//
// Error handling strategy: individual account/message failures are logged
// and skipped so one broken mailbox never halts the sweep, and a
// notification failure never rolls back the alert row it refers to.
type AlertService struct {
	storage    ports.Storage
	source     ports.MailSource
	scorer     *mailscan.Scorer
	dispatcher *Dispatcher
	log        zerolog.Logger
	metrics    *metrics.Metrics

	// maxMessages bounds one mailbox fetch.
	maxMessages int
}

// NewAlertService wires the pipeline with constructor-supplied
// collaborators.
func NewAlertService(
	storage ports.Storage,
	source ports.MailSource,
	scorer *mailscan.Scorer,
	dispatcher *Dispatcher,
	log zerolog.Logger,
	m *metrics.Metrics,
	maxMessages int,
) *AlertService {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &AlertService{
		storage:     storage,
		source:      source,
		scorer:      scorer,
		dispatcher:  dispatcher,
		log:         log.With().Str("component", "alert_service").Logger(),
		metrics:     m,
		maxMessages: maxMessages,
	}
}

// ScanAllAccounts sweeps every monitored mailbox. Per-account failures
// are logged and skipped; the sweep itself only fails when the account
// list cannot be read.
func (s *AlertService) ScanAllAccounts(ctx context.Context) error {
	accounts, err := s.storage.ListMailAccounts(ctx)
	if err != nil {
		return fmt.Errorf("list mail accounts: %w", err)
	}

	for i := range accounts {
		acct := &accounts[i]
		created, err := s.ScanAccount(ctx, acct)
		if err != nil {
			s.log.Error().Err(err).Str("mailbox", acct.Email).Msg("mailbox scan failed")
			continue
		}
		s.log.Info().Str("mailbox", acct.Email).Int("alerts", created).Msg("mailbox scanned")
	}
	return nil
}

// ScanAccount fetches and scores one mailbox, returning the number of
// alerts created.
func (s *AlertService) ScanAccount(ctx context.Context, acct *domain.MailAccount) (int, error) {
	messages, err := s.source.FetchRecent(ctx, acct, s.maxMessages)
	if err != nil {
		return 0, fmt.Errorf("fetch mailbox %s: %w", acct.Email, err)
	}

	created := 0
	for _, msg := range messages {
		verdict := s.scorer.Score(msg)
		if verdict.DangerLevel == domain.RiskLow {
			continue
		}
		raised, err := s.raiseMailAlert(ctx, acct.UserID, msg, verdict)
		if err != nil {
			s.log.Error().Err(err).Str("msg_uid", msg.UID).Msg("alert creation failed")
			continue
		}
		if raised {
			created++
		}
	}
	return created, nil
}

// raiseMailAlert persists the alert, then notifies. The notification is
// fire-and-forget: the alert row commits whether or not a push goes out.
// A message UID that already has an alert is skipped entirely, so
// re-fetched messages never raise duplicates.
func (s *AlertService) raiseMailAlert(ctx context.Context, userID uuid.UUID, msg mailscan.Message, verdict domain.MailVerdict) (bool, error) {
	if msg.UID != "" {
		existing, err := s.storage.GetMailAlertByUID(ctx, userID, msg.UID)
		if err != nil {
			return false, fmt.Errorf("check existing alert: %w", err)
		}
		if existing != nil {
			return false, nil
		}
	}

	alert := &domain.MailAlert{
		ID:      uuid.New(),
		UserID:  userID,
		MsgUID:  msg.UID,
		Subject: msg.Subject,
		Sender:  msg.Sender,
		Reason:  strings.Join(verdict.Reasons, "; "),
	}
	if err := s.storage.CreateMailAlert(ctx, alert); err != nil {
		return false, fmt.Errorf("create mail alert: %w", err)
	}
	s.metrics.MailAlert()

	outcome := s.dispatcher.Notify(ctx, userID,
		"Mail sospechoso",
		fmt.Sprintf("Asunto: %s — Remitente: %s", msg.Subject, msg.Sender),
		fmt.Sprintf("/mail/alerts/%s", alert.ID),
	)
	s.log.Debug().
		Stringer("user_id", userID).
		Str("outcome", string(outcome)).
		Msg("mail alert notification routed")
	return true, nil
}

// AnalyzeLog classifies raw log text for a user and notifies when the
// aggregate risk is high. The report is always returned; notification is
// observability only.
func (s *AlertService) AnalyzeLog(ctx context.Context, userID uuid.UUID, raw string) logscan.Report {
	report := logscan.Analyze(raw)
	if report.Summary.Risk == domain.RiskHigh {
		s.dispatcher.Notify(ctx, userID,
			"Riesgo alto en logs",
			fmt.Sprintf("%d hallazgos en el último análisis", len(report.Findings)),
			"/reports",
		)
	}
	return report
}

// ReleaseBacklogs is the periodic reconciliation pass: every user with
// queued notifications gets a flush attempt, which is a no-op while their
// quiet hours are still in effect.
func (s *AlertService) ReleaseBacklogs(ctx context.Context) error {
	users, err := s.storage.ListQueuedUsers(ctx)
	if err != nil {
		return fmt.Errorf("list queued users: %w", err)
	}
	for _, userID := range users {
		s.dispatcher.FlushIfNeeded(ctx, userID)
	}
	return nil
}
