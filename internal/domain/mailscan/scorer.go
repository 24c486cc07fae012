package mailscan

import (
	"fmt"
	"strings"
	"time"

	"github.com/alerttrail/alerttrail/internal/domain"
)

// Attachment is the metadata the scorer needs about one attachment.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Message is a parsed email ready for scoring. Absent bodies or
// attachments are simply empty.
type Message struct {
	UID         string       `json:"uid"`
	Subject     string       `json:"subject"`
	Sender      string       `json:"from"`
	Date        time.Time    `json:"date"`
	Text        string       `json:"-"`
	HTML        string       `json:"-"`
	Attachments []Attachment `json:"attachments"`
}

// Signal is one heuristic's contribution to a verdict: danger points,
// human-readable reasons and any extracted indicators.
type Signal struct {
	Points   int
	Reasons  []string
	URLs     []string
	OTPCodes []string
}

// Heuristic is a single scoring rule. Implementations must be stateless
// and safe for concurrent use; an empty Signal means the rule did not
// trigger.
type Heuristic interface {
	// Evaluate inspects one message and returns its contribution.
	Evaluate(msg Message) Signal

	// Name returns the human-readable name of this heuristic.
	Name() string
}

// Scorer runs an ordered pipeline of heuristics over parsed messages and
// aggregates their signals into a verdict. The order is fixed so reasons
// come out deterministically.
type Scorer struct {
	heuristics []Heuristic
}

// NewScorer builds a scorer with the standard heuristics. An empty tlds
// slice falls back to DefaultSuspiciousTLDs.
func NewScorer(suspiciousTLDs []string) *Scorer {
	if len(suspiciousTLDs) == 0 {
		suspiciousTLDs = DefaultSuspiciousTLDs
	}
	return &Scorer{
		heuristics: []Heuristic{
			newSuspiciousTLDHeuristic(suspiciousTLDs),
			phishingPhraseHeuristic{},
			exposedOTPHeuristic{},
			attachmentHeuristic{},
		},
	}
}

// Score evaluates one message and never fails. Reasons accumulate in
// heuristic order, one per rule category per message except attachment
// rules, which report per attachment.
func (s *Scorer) Score(msg Message) domain.MailVerdict {
	reasons := make([]string, 0)
	iocs := domain.IOCSet{URLs: []string{}, OTPCodes: []string{}}
	danger := 0

	for _, h := range s.heuristics {
		sig := h.Evaluate(msg)
		danger += sig.Points
		reasons = append(reasons, sig.Reasons...)
		iocs.URLs = append(iocs.URLs, sig.URLs...)
		iocs.OTPCodes = append(iocs.OTPCodes, sig.OTPCodes...)
	}

	return domain.MailVerdict{
		DangerLevel: classifyDanger(danger),
		Reasons:     reasons,
		IOCs:        iocs,
	}
}

// suspiciousTLDHeuristic extracts URLs from every text surface of the
// message and flags links ending in a suspicious TLD. Extracted URLs are
// reported as indicators even when none is suspicious.
type suspiciousTLDHeuristic struct {
	tlds   []string
	reason string
}

func newSuspiciousTLDHeuristic(tlds []string) suspiciousTLDHeuristic {
	return suspiciousTLDHeuristic{
		tlds:   tlds,
		reason: fmt.Sprintf("URLs con TLDs sospechosos (%s)", strings.Join(tlds, "/")),
	}
}

func (h suspiciousTLDHeuristic) Name() string { return "Suspicious URL TLDs" }

func (h suspiciousTLDHeuristic) Evaluate(msg Message) Signal {
	allText := strings.Join([]string{msg.Subject, msg.Sender, msg.Text, msg.HTML}, " ")
	urls := urlRE.FindAllString(allText, -1)
	if len(urls) == 0 {
		return Signal{}
	}

	sig := Signal{URLs: urls}
	for _, u := range urls {
		if hasAnySuffix(strings.ToLower(u), h.tlds) {
			sig.Points = weightSuspiciousTLD
			sig.Reasons = []string{h.reason}
			break
		}
	}
	return sig
}

// phishingPhraseHeuristic fires once per message, however many phrases
// match.
type phishingPhraseHeuristic struct{}

func (phishingPhraseHeuristic) Name() string { return "Phishing Phrases" }

func (phishingPhraseHeuristic) Evaluate(msg Message) Signal {
	joined := strings.ToLower(msg.Subject + " " + msg.Text)
	for _, pat := range phishingPhrases {
		if pat.MatchString(joined) {
			return Signal{
				Points:  weightPhishingPhrase,
				Reasons: []string{"Patrones típicos de phishing"},
			}
		}
	}
	return Signal{}
}

// exposedOTPHeuristic flags six-digit codes sitting in the subject or
// body.
type exposedOTPHeuristic struct{}

func (exposedOTPHeuristic) Name() string { return "Exposed OTP Codes" }

func (exposedOTPHeuristic) Evaluate(msg Message) Signal {
	joined := strings.ToLower(msg.Subject + " " + msg.Text)
	otps := otpRE.FindAllString(joined, -1)
	if len(otps) == 0 {
		return Signal{}
	}
	return Signal{
		Points:   weightExposedOTP,
		Reasons:  []string{"Código OTP expuesto en el cuerpo"},
		OTPCodes: otps,
	}
}

// attachmentHeuristic scores every attachment independently; one file can
// trigger several rules.
type attachmentHeuristic struct{}

func (attachmentHeuristic) Name() string { return "Risky Attachments" }

func (attachmentHeuristic) Evaluate(msg Message) Signal {
	var sig Signal
	for _, att := range msg.Attachments {
		fname := strings.ToLower(att.Filename)
		if fname == "" {
			continue
		}
		if hasAnySuffix(fname, executableExtensions) {
			sig.Reasons = append(sig.Reasons, fmt.Sprintf("Adjunto ejecutable/sospechoso: %s", fname))
			sig.Points += weightExecutableAttach
		}
		if doubleExtensionRE.MatchString(fname) {
			sig.Reasons = append(sig.Reasons, fmt.Sprintf("Doble extensión riesgosa: %s", fname))
			sig.Points += weightDoubleExtension
		}
		if strings.HasSuffix(fname, ".zip") && att.Size > 0 {
			sig.Reasons = append(sig.Reasons, fmt.Sprintf("Adjunto comprimido: %s", fname))
			sig.Points += weightCompressedAttach
		}
	}
	return sig
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func classifyDanger(danger int) domain.Risk {
	switch {
	case danger >= dangerHighThreshold:
		return domain.RiskHigh
	case danger >= dangerMediumThreshold:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
