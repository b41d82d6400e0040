package metax

import (
	"strconv"
	"strings"
)

// Severity orders events from EMERG (most severe) to DEBUG.
type Severity int

const (
	SeverityEmerg Severity = iota
	SeverityAlert
	SeverityCrit
	SeverityErr
	SeverityWarning
	SeverityNotice
	SeverityInfo
	SeverityDebug

	// SeverityAll as a threshold reports every event.
	SeverityAll Severity = 8
	// SeverityNone as a threshold reports nothing.
	SeverityNone Severity = 255

	DefaultSeverity = SeverityNotice
)

var severityNames = map[Severity]string{
	SeverityEmerg:   "EMERG",
	SeverityAlert:   "ALERT",
	SeverityCrit:    "CRIT",
	SeverityErr:     "ERR",
	SeverityWarning: "WARNING",
	SeverityNotice:  "NOTICE",
	SeverityInfo:    "INFO",
	SeverityDebug:   "DEBUG",
	SeverityAll:     "_ALL",
	SeverityNone:    "_NONE",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return strconv.Itoa(int(s))
}

// ParseSeverity accepts a level name (case-insensitive) or its number.
func ParseSeverity(s string) (Severity, bool) {
	s = strings.TrimSpace(s)
	for lvl, name := range severityNames {
		if strings.EqualFold(s, name) {
			return lvl, true
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 255 {
		return 0, false
	}
	return Severity(n), true
}

// Reportable reports whether an event at level s passes threshold t: s must
// be strictly more severe than t, and SeverityNone passes nothing.
func (s Severity) Reportable(t Severity) bool {
	if t == SeverityNone {
		return false
	}
	return s < t
}

// SetSeverity records the level as a severity option, replacing an existing
// one in place so option order is kept.
func (m *Metadata) SetSeverity(s Severity) {
	payload := []byte{byte(s)}
	for i := range m.options {
		if m.options[i].Type == OptionSeverity {
			m.options[i].Payload = payload
			return
		}
	}
	// only fails when the option bytes are exhausted; the level then stays
	// at the default
	_ = m.AddOption(Option{Type: OptionSeverity, Payload: payload})
}

// Severity returns the level carried in the options, or DefaultSeverity.
func (m Metadata) Severity() Severity {
	for _, o := range m.options {
		if o.Type == OptionSeverity && len(o.Payload) == 1 {
			return Severity(o.Payload[0])
		}
	}
	return DefaultSeverity
}
