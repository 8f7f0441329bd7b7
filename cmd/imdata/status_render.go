package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type checkLevel int

const (
	checkInfo checkLevel = iota
	checkOK
	checkWarn
	checkFail
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const checkLabelWidth = 18

// renderCheck formats one doctor line, e.g. "  pdftotext:         [OK] /usr/bin/pdftotext".
func renderCheck(label string, level checkLevel, message string, colorize bool) string {
	status := "[" + checkLevelLabel(level) + "]"
	if message != "" {
		status += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", checkLabelWidth, label+":", status)
	if colorize {
		return checkLevelColor(level) + line + ansiReset
	}
	return line
}

func checkLevelLabel(level checkLevel) string {
	switch level {
	case checkOK:
		return "OK"
	case checkWarn:
		return "WARN"
	case checkFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

func checkLevelColor(level checkLevel) string {
	switch level {
	case checkOK:
		return ansiGreen
	case checkWarn:
		return ansiYellow
	case checkFail:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderHeading(title string, colorize bool) string {
	line := "== " + strings.TrimSpace(title) + " =="
	if colorize {
		return ansiBlue + line + ansiReset
	}
	return line
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
