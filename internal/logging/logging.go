// Package logging sets up the leveled logger shared by the server and handlers.
package logging

import (
	"strings"

	"github.com/labstack/gommon/log"
)

const (
	prefix = "inference"
	header = "${time_rfc3339} ${level} ${prefix} ${short_file}:${line}"
)

// New returns a logger writing at the named level.
//
// Unknown level names fall back to warn.
func New(level string) *log.Logger {
	l := log.New(prefix)
	l.SetHeader(header)

	lvl, ok := ParseLevel(level)
	l.SetLevel(lvl)
	if !ok {
		l.Warnf("unknown loglevel: %s . fall-backed to warn", level)
	}
	return l
}

// ParseLevel maps a level name to a gommon level. The empty string is warn.
func ParseLevel(level string) (log.Lvl, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DEBUG, true
	case "info":
		return log.INFO, true
	case "warn", "warning", "":
		return log.WARN, true
	case "error":
		return log.ERROR, true
	case "off":
		return log.OFF, true
	default:
		return log.WARN, false
	}
}
