package mailscan

import "regexp"

// Lexical rules for one message. Phrase patterns are Spanish because that
// is the product's user base; the suspicious TLD list is configurable per
// deployment (see NewScorer).
var (
	urlRE = regexp.MustCompile(`(?i)https?://[^\s"'>)]+`)

	otpRE = regexp.MustCompile(`\b(\d{6})\b`)

	// A benign document extension immediately followed by an archive or
	// executable extension, e.g. invoice.pdf.exe.
	doubleExtensionRE = regexp.MustCompile(`(?i)\.(pdf|docx?|xlsx?|pptx?)\.(zip|rar|7z|exe|js)$`)

	phishingPhrases = []*regexp.Regexp{
		regexp.MustCompile(`(?i)verifica tu cuenta`),
		regexp.MustCompile(`(?i)tu cuenta será suspendida`),
		regexp.MustCompile(`(?i)urgente`),
		regexp.MustCompile(`(?i)confirma tu contraseña`),
		regexp.MustCompile(`(?i)actualiza tu método de pago`),
		regexp.MustCompile(`(?i)has sido seleccionado`),
		regexp.MustCompile(`(?i)transferencia pendiente`),
		regexp.MustCompile(`(?i)adjunto factura`),
		regexp.MustCompile(`(?i)comprobante de pago`),
		regexp.MustCompile(`(?i)factura vencida`),
		regexp.MustCompile(`(?i)bloqueado por seguridad`),
	}
)

// executableExtensions are attachment suffixes that can run code on the
// victim's machine.
var executableExtensions = []string{
	".exe", ".js", ".vbs", ".scr", ".bat", ".cmd", ".ps1",
	".jar", ".lnk", ".msi", ".reg", ".hta", ".apk", ".dmg", ".pkg",
	".iso", ".img", ".bin", ".dll", ".com",
}

// DefaultSuspiciousTLDs are URL suffixes flagged when no deployment
// override is configured.
var DefaultSuspiciousTLDs = []string{".zip", ".mov"}

// Heuristic weights and classification thresholds. The danger score
// accumulates across triggered rules.
const (
	weightSuspiciousTLD    = 2
	weightPhishingPhrase   = 2
	weightExposedOTP       = 1
	weightExecutableAttach = 3
	weightDoubleExtension  = 2
	weightCompressedAttach = 1

	dangerHighThreshold   = 4
	dangerMediumThreshold = 2
)
