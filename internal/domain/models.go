package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a single finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Risk is the aggregate classification of an analysis or a scanned message.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// FindingKind is the closed set of detections the log analyzer can emit.
type FindingKind string

const (
	KindSSHFailed    FindingKind = "ssh_failed"
	KindSSHAccepted  FindingKind = "ssh_accepted"
	KindSQLInjection FindingKind = "sqli"
	KindXSS          FindingKind = "xss"
	KindBruteforce   FindingKind = "bruteforce_suspected"
)

// Finding is a single classified detection from the log analyzer.
// Immutable once produced; a brute-force aggregate is its own Finding,
// not a mutation of the individual failure findings.
type Finding struct {
	Kind     FindingKind `json:"kind"`
	Severity Severity    `json:"severity"`
	SourceIP string      `json:"source_ip,omitempty"`
	User     string      `json:"user,omitempty"`
	Line     string      `json:"line,omitempty"`
	Note     string      `json:"note,omitempty"`
}

// RiskSummary aggregates per-kind counts for one analysis call.
// It is recomputed fully on each call, never incrementally mutated.
type RiskSummary struct {
	TotalLines    int  `json:"total_lines"`
	SSHFailed     int  `json:"ssh_failed"`
	SSHAccepted   int  `json:"ssh_accepted"`
	SQLInjection  int  `json:"sqli"`
	XSS           int  `json:"xss"`
	BruteforceIPs int  `json:"bruteforce_ips"`
	Risk          Risk `json:"risk"`
}

// IOCSet holds the indicators of compromise extracted from one message.
type IOCSet struct {
	URLs     []string `json:"urls"`
	OTPCodes []string `json:"otp_codes"`
}

// MailVerdict is the mail heuristic scorer's output for one message.
// Reasons are ordered first-triggered-first.
type MailVerdict struct {
	DangerLevel Risk     `json:"danger_level"`
	Reasons     []string `json:"reasons"`
	IOCs        IOCSet   `json:"iocs"`
}

// Plans that unlock push alerting.
const (
	PlanPro      = "PRO"
	PlanBusiness = "BUSINESS"
)

// User is the minimal account view the alerting core needs: identity plus
// plan state for the eligibility gate.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Plan        string     `json:"plan"`
	PlanExpires *time.Time `json:"plan_expires,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsPaid reports whether the user holds an unexpired PRO or BUSINESS plan.
func (u *User) IsPaid(now time.Time) bool {
	if u.Plan != PlanPro && u.Plan != PlanBusiness {
		return false
	}
	return u.PlanExpires == nil || u.PlanExpires.After(now)
}

// DefaultCooldownMinutes is the cooldown applied to lazily created
// preference rows.
const DefaultCooldownMinutes = 10

// NotificationPreference is per-user alerting configuration. One row per
// user; created lazily with defaults on first access.
//
// QuietHours is stored in its wire form, e.g. "23-7" for a window spanning
// midnight, or "" for none. Use Window to get the parsed form.
type NotificationPreference struct {
	UserID          uuid.UUID `json:"user_id"`
	CooldownMinutes int       `json:"cooldown_minutes"`
	QuietHours      string    `json:"quiet_hours"`
	PushEnabled     bool      `json:"push_enabled"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Window returns the parsed quiet-hours window, or nil when no valid
// window is configured. A malformed string behaves as "no quiet hours".
func (p *NotificationPreference) Window() *QuietWindow {
	return ParseQuietHours(p.QuietHours)
}

// QuietWindow is a daily [Start,End) hour window. Start > End spans
// midnight (e.g. 23-7).
type QuietWindow struct {
	StartHour int
	EndHour   int
}

// ParseQuietHours parses "HH-HH" into a window. Returns nil for empty or
// malformed input, or hours outside [0,24).
func ParseQuietHours(s string) *QuietWindow {
	if s == "" {
		return nil
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil
	}
	if start < 0 || start >= 24 || end < 0 || end >= 24 {
		return nil
	}
	return &QuietWindow{StartHour: start, EndHour: end}
}

// Contains reports whether the given hour falls inside the window,
// handling windows that wrap around midnight.
func (w *QuietWindow) Contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return w.StartHour <= hour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

// String renders the wire form ("23-7").
func (w *QuietWindow) String() string {
	return fmt.Sprintf("%d-%d", w.StartHour, w.EndHour)
}

// NotificationState tracks delivery state per user. LastPushAt moves only
// on a successful delivery.
type NotificationState struct {
	UserID     uuid.UUID  `json:"user_id"`
	LastPushAt *time.Time `json:"last_push_at,omitempty"`
}

// NotificationQueueItem is one deferred notification. Items are ordered by
// CreatedAt ascending and are append-only until a successful flush.
type NotificationQueueItem struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// PushSubscription holds one browser push endpoint plus its key material.
// Opaque to the dispatcher except for presence.
type PushSubscription struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"-"`
	Auth      string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// PushPayload is what the delivery gateway sends to the browser.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// MailAlert is a persisted per-user alert for a risky scanned message.
type MailAlert struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	MsgUID    string    `json:"msg_uid"`
	Subject   string    `json:"subject"`
	Sender    string    `json:"sender"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

// MailAccount is a monitored IMAP mailbox belonging to a user.
type MailAccount struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	IMAPServer string    `json:"imap_server"`
	IMAPPort   int       `json:"imap_port"`
	UseSSL     bool      `json:"use_ssl"`
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
