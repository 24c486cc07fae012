package logscan

import (
	"strings"
	"testing"

	"github.com/alerttrail/alerttrail/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	failedLine   = "Jan 12 03:14:07 web sshd[1022]: Failed password for invalid user oracle from 203.0.113.7 port 50022 ssh2"
	acceptedLine = "Jan 12 03:20:41 web sshd[1022]: Accepted password for deploy from 198.51.100.9 port 2201 ssh2"
	rootLine     = "Jan 12 03:21:03 web sshd[1022]: Accepted password for root from 198.51.100.9 port 2202 ssh2"
	sqliLine     = `203.0.113.50 - - GET /products?id=1' OR 1=1 -- HTTP/1.1`
	xssLine      = `203.0.113.51 - - GET /search?q=<script>alert(1)</script> HTTP/1.1`
)

// failedFrom builds a failed-login line for a specific source address.
func failedFrom(ip string) string {
	return "sshd[99]: Failed password for invalid user guest from " + ip + " port 4444 ssh2"
}

func TestAnalyze_EmptyInput(t *testing.T) {
	for _, raw := range []string{"", "\n\n\n", "   \n\t\n"} {
		report := Analyze(raw)
		assert.Empty(t, report.Findings)
		assert.Equal(t, domain.RiskLow, report.Summary.Risk)
		assert.Zero(t, report.Summary.TotalLines)
	}
}

func TestAnalyze_NonMatchingLinesProduceNoFindings(t *testing.T) {
	report := Analyze("just some text\nanother harmless line\n")
	assert.Empty(t, report.Findings)
	assert.Equal(t, 2, report.Summary.TotalLines)
	assert.Equal(t, domain.RiskLow, report.Summary.Risk)
}

func TestAnalyze_LineClassification(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		kind     domain.FindingKind
		severity domain.Severity
		ip       string
		user     string
	}{
		{"failed login is medium", failedLine, domain.KindSSHFailed, domain.SeverityMedium, "203.0.113.7", "oracle"},
		{"accepted login is low", acceptedLine, domain.KindSSHAccepted, domain.SeverityLow, "198.51.100.9", "deploy"},
		{"accepted root login is high", rootLine, domain.KindSSHAccepted, domain.SeverityHigh, "198.51.100.9", "root"},
		{"sql injection is high", sqliLine, domain.KindSQLInjection, domain.SeverityHigh, "", ""},
		{"xss is medium", xssLine, domain.KindXSS, domain.SeverityMedium, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Analyze(tt.line)
			require.Len(t, report.Findings, 1)
			f := report.Findings[0]
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.severity, f.Severity)
			assert.Equal(t, tt.ip, f.SourceIP)
			assert.Equal(t, tt.user, f.User)
		})
	}
}

func TestAnalyze_BruteforceThreshold(t *testing.T) {
	two := failedFrom("10.0.0.1") + "\n" + failedFrom("10.0.0.1")
	report := Analyze(two)
	assert.Zero(t, report.Summary.BruteforceIPs)
	for _, f := range report.Findings {
		assert.NotEqual(t, domain.KindBruteforce, f.Kind)
	}

	three := two + "\n" + failedFrom("10.0.0.1")
	report = Analyze(three)
	assert.Equal(t, 1, report.Summary.BruteforceIPs)

	var bf *domain.Finding
	for i := range report.Findings {
		if report.Findings[i].Kind == domain.KindBruteforce {
			bf = &report.Findings[i]
		}
	}
	require.NotNil(t, bf, "expected a brute-force finding")
	assert.Equal(t, domain.SeverityHigh, bf.Severity)
	assert.Equal(t, "10.0.0.1", bf.SourceIP)
	assert.Contains(t, bf.Note, "3")
}

func TestAnalyze_DuplicateLinesCountIndependently(t *testing.T) {
	report := Analyze(sqliLine + "\n" + sqliLine)
	assert.Equal(t, 2, report.Summary.SQLInjection)
	assert.Len(t, report.Findings, 2)
}

func TestAnalyze_RiskBoundaries(t *testing.T) {
	// Distinct source addresses so the brute-force bonus never kicks in:
	// each failed login contributes exactly weight 1.
	failures := func(n int) string {
		var sb strings.Builder
		for i := 0; i < n; i++ {
			sb.WriteString(failedFrom("10.1.0." + string(rune('1'+i))))
			sb.WriteString("\n")
		}
		return sb.String()
	}

	tests := []struct {
		name string
		raw  string
		want domain.Risk
	}{
		{"score 0 is low", "", domain.RiskLow},
		{"score 3 is low", failures(3), domain.RiskLow},
		{"score 4 is medium", failures(4), domain.RiskMedium},
		{"score 9 is medium", sqliLine + "\n" + xssLine + "\n" + xssLine, domain.RiskMedium},
		{"score 10 is high", sqliLine + "\n" + sqliLine, domain.RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.raw).Summary.Risk)
		})
	}
}
