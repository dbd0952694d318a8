package security

import (
	"math/big"

	"github.com/sirupsen/logrus"
)

// maxLoggedTokens caps token amounts in log output. Anything above is
// reported as the cap so logs never leak exact large balances.
var maxLoggedTokens = big.NewInt(1_000_000)

var weiPerToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Logger writes structured security events. Addresses are truncated and
// amounts capped before they reach the log stream.
type Logger struct {
	log *logrus.Logger
}

// NewLogger creates a security event logger.
func NewLogger(log *logrus.Logger) *Logger {
	if log == nil {
		log = logrus.New()
	}
	return &Logger{log: log}
}

// Event records a security event with sanitized fields.
func (l *Logger) Event(eventType string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["security_event"] = eventType
	l.log.WithFields(fields).Warn("🔒 security event")
}

// Info records a non-alerting security log line.
func (l *Logger) Info(eventType string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["security_event"] = eventType
	l.log.WithFields(fields).Info("🔒 security event")
}

// SanitizeAddress truncates an address to its first 6 and last 4 characters.
func SanitizeAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// FormatAmount renders a wei amount as whole tokens for logging, capped at
// maxLoggedTokens.
func FormatAmount(amountWei *big.Int) string {
	if amountWei == nil {
		return "0"
	}
	tokens := new(big.Int).Div(amountWei, weiPerToken)
	if tokens.Cmp(maxLoggedTokens) > 0 {
		return ">" + maxLoggedTokens.String()
	}
	return tokens.String()
}
