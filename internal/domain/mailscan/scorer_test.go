package mailscan

import (
	"strings"
	"testing"

	"github.com/alerttrail/alerttrail/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_CleanMessageIsLow(t *testing.T) {
	scorer := NewScorer(nil)

	verdict := scorer.Score(Message{
		Subject: "Minuta de la reunión",
		Sender:  "colega@empresa.com",
		Text:    "Te paso el resumen de hoy. Saludos.",
	})

	assert.Equal(t, domain.RiskLow, verdict.DangerLevel)
	assert.Empty(t, verdict.Reasons)
	assert.Empty(t, verdict.IOCs.URLs)
	assert.Empty(t, verdict.IOCs.OTPCodes)
}

func TestScore_PhishingSubjectWithExecutableAttachment(t *testing.T) {
	scorer := NewScorer(nil)

	verdict := scorer.Score(Message{
		Subject: "URGENTE verifica tu cuenta",
		Sender:  "soporte@banco-falso.com",
		Text:    "Tu cuenta será suspendida.",
		Attachments: []Attachment{
			{Filename: "invoice.exe", ContentType: "application/octet-stream", Size: 2048},
		},
	})

	assert.Equal(t, domain.RiskHigh, verdict.DangerLevel)
	assert.Contains(t, verdict.Reasons, "Patrones típicos de phishing")

	found := false
	for _, r := range verdict.Reasons {
		if strings.Contains(r, "invoice.exe") && strings.Contains(r, "ejecutable") {
			found = true
		}
	}
	assert.True(t, found, "expected an executable-attachment reason, got %v", verdict.Reasons)
}

func TestScore_PhishingPhraseReportedOnce(t *testing.T) {
	scorer := NewScorer(nil)

	// Several phrases match; the reason must still appear once.
	verdict := scorer.Score(Message{
		Subject: "URGENTE: factura vencida",
		Text:    "verifica tu cuenta o tu cuenta será suspendida",
	})

	count := 0
	for _, r := range verdict.Reasons {
		if r == "Patrones típicos de phishing" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, domain.RiskMedium, verdict.DangerLevel)
}

func TestScore_DoubleExtension(t *testing.T) {
	scorer := NewScorer(nil)

	tests := []struct {
		filename    string
		wantsReason bool
	}{
		{"report.pdf.zip", true},
		{"invoice.pdf.exe", true},
		{"report.pdf", false},
		{"resumen.docx", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			verdict := scorer.Score(Message{
				Attachments: []Attachment{{Filename: tt.filename, Size: 100}},
			})
			found := false
			for _, r := range verdict.Reasons {
				if strings.Contains(r, "Doble extensión") {
					found = true
				}
			}
			assert.Equal(t, tt.wantsReason, found, "reasons: %v", verdict.Reasons)
		})
	}
}

func TestScore_CompressedAttachment(t *testing.T) {
	scorer := NewScorer(nil)

	// Nonzero .zip adds the low-weight compressed reason.
	verdict := scorer.Score(Message{
		Attachments: []Attachment{{Filename: "fotos.zip", Size: 10}},
	})
	require.Len(t, verdict.Reasons, 1)
	assert.Contains(t, verdict.Reasons[0], "comprimido")
	assert.Equal(t, domain.RiskLow, verdict.DangerLevel)

	// An empty .zip does not.
	verdict = scorer.Score(Message{
		Attachments: []Attachment{{Filename: "fotos.zip", Size: 0}},
	})
	assert.Empty(t, verdict.Reasons)
}

func TestScore_SuspiciousURLsAndOTP(t *testing.T) {
	scorer := NewScorer(nil)

	verdict := scorer.Score(Message{
		Subject: "Tu código",
		Text:    "Ingresá en https://descargas.ejemplo.zip con el código 482913 ahora",
	})

	assert.Equal(t, []string{"https://descargas.ejemplo.zip"}, verdict.IOCs.URLs)
	assert.Equal(t, []string{"482913"}, verdict.IOCs.OTPCodes)
	assert.Contains(t, verdict.Reasons, "URLs con TLDs sospechosos (.zip/.mov)")
	assert.Contains(t, verdict.Reasons, "Código OTP expuesto en el cuerpo")
	// 2 for the TLD, 1 for the OTP.
	assert.Equal(t, domain.RiskMedium, verdict.DangerLevel)
}

func TestScore_ConfigurableTLDs(t *testing.T) {
	scorer := NewScorer([]string{".xyz"})

	verdict := scorer.Score(Message{Text: "mirá https://promo.ejemplo.xyz"})
	assert.Contains(t, verdict.Reasons, "URLs con TLDs sospechosos (.xyz)")

	verdict = scorer.Score(Message{Text: "mirá https://archivo.ejemplo.zip"})
	for _, r := range verdict.Reasons {
		assert.NotContains(t, r, "TLDs sospechosos")
	}
}

func TestScore_ThresholdBoundaries(t *testing.T) {
	scorer := NewScorer(nil)

	tests := []struct {
		name string
		msg  Message
		want domain.Risk
	}{
		{
			name: "score 1 is low",
			msg:  Message{Text: "código 123456"},
			want: domain.RiskLow,
		},
		{
			name: "score 2 is medium",
			msg:  Message{Subject: "urgente"},
			want: domain.RiskMedium,
		},
		{
			name: "score 3 is medium",
			msg:  Message{Attachments: []Attachment{{Filename: "setup.msi", Size: 1}}},
			want: domain.RiskMedium,
		},
		{
			name: "score 4 is high",
			msg:  Message{Subject: "urgente", Text: "código 123456", Attachments: []Attachment{{Filename: "fotos.zip", Size: 9}}},
			want: domain.RiskHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scorer.Score(tt.msg).DangerLevel)
		})
	}
}
