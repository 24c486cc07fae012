package logscan

import (
	"fmt"
	"strings"

	"github.com/alerttrail/alerttrail/internal/domain"
)

// Report is the result of one analysis call: the individual findings plus
// the recomputed aggregate summary.
type Report struct {
	Findings []domain.Finding   `json:"findings"`
	Summary  domain.RiskSummary `json:"summary"`
}

// Analyze classifies raw log text into findings and an aggregate risk
// summary. It is a total function: any input, including empty or malformed
// text, produces a report; non-matching lines simply yield no findings.
//
// Failure counting is per source address across the whole input. An
// address reaching the brute-force threshold yields one extra finding on a
// second pass, carrying the accumulated count.
func Analyze(raw string) Report {
	findings := make([]domain.Finding, 0)
	summary := domain.RiskSummary{}

	failsByIP := make(map[string]int)
	ipOrder := make([]string, 0)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		summary.TotalLines++

		if m := sshFailedRE.FindStringSubmatch(line); m != nil {
			user, ip := m[2], m[3]
			summary.SSHFailed++
			if failsByIP[ip] == 0 {
				ipOrder = append(ipOrder, ip)
			}
			failsByIP[ip]++
			findings = append(findings, domain.Finding{
				Kind:     domain.KindSSHFailed,
				Severity: domain.SeverityMedium,
				SourceIP: ip,
				User:     user,
				Line:     line,
			})
		}

		if m := sshAcceptedRE.FindStringSubmatch(line); m != nil {
			user, ip := m[1], m[2]
			summary.SSHAccepted++
			severity := domain.SeverityLow
			note := ""
			if privilegedAccounts[strings.ToLower(user)] {
				severity = domain.SeverityHigh
				note = "login exitoso de cuenta privilegiada"
			}
			findings = append(findings, domain.Finding{
				Kind:     domain.KindSSHAccepted,
				Severity: severity,
				SourceIP: ip,
				User:     user,
				Line:     line,
				Note:     note,
			})
		}

		if sqlInjectionRE.MatchString(line) {
			summary.SQLInjection++
			findings = append(findings, domain.Finding{
				Kind:     domain.KindSQLInjection,
				Severity: domain.SeverityHigh,
				Line:     line,
			})
		}

		if xssRE.MatchString(line) {
			summary.XSS++
			findings = append(findings, domain.Finding{
				Kind:     domain.KindXSS,
				Severity: domain.SeverityMedium,
				Line:     line,
			})
		}
	}

	// Second pass: promote repeat offenders, in first-seen order so output
	// is stable for identical input.
	for _, ip := range ipOrder {
		count := failsByIP[ip]
		if count < bruteforceThreshold {
			continue
		}
		summary.BruteforceIPs++
		findings = append(findings, domain.Finding{
			Kind:     domain.KindBruteforce,
			Severity: domain.SeverityHigh,
			SourceIP: ip,
			Note:     fmt.Sprintf("%d intentos fallidos desde la misma IP", count),
		})
	}

	summary.Risk = classify(summary)
	return Report{Findings: findings, Summary: summary}
}

// classify derives the aggregate risk from the weighted per-kind counts.
func classify(s domain.RiskSummary) domain.Risk {
	score := s.SSHFailed*1 +
		s.SSHAccepted*1 +
		s.SQLInjection*5 +
		s.XSS*2 +
		s.BruteforceIPs*5

	switch {
	case score >= 10:
		return domain.RiskHigh
	case score >= 4:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}
