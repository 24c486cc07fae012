package logscan

import "regexp"

// Compiled matchers for one log line. The sshd patterns capture the
// principal and source address; the injection patterns are lexical and
// match anywhere in the line.
var (
	sshFailedRE = regexp.MustCompile(`Failed password for (invalid user )?(\S+) from (\d{1,3}(?:\.\d{1,3}){3}) .*ssh2`)

	sshAcceptedRE = regexp.MustCompile(`Accepted password for (\S+) from (\d{1,3}(?:\.\d{1,3}){3}) .*ssh2`)

	sqlInjectionRE = regexp.MustCompile(`(?i)('|")\s*or\s*1=1|union\s+select|--\s`)

	xssRE = regexp.MustCompile(`(?i)<script>|onerror=|onload=`)
)

// bruteforceThreshold is the number of failed logins from a single source
// address that promotes the address to a brute-force finding. Counting is
// per-address across the whole input, not time-windowed.
const bruteforceThreshold = 3

// privilegedAccounts are principals whose successful login is always
// reported as high severity.
var privilegedAccounts = map[string]bool{
	"root":          true,
	"admin":         true,
	"administrator": true,
}
