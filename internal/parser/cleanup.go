package parser

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// CleanLog strips terminal escape sequences and carriage returns from a
// console log.
// Input:  "\x1b[0m[    1.0] Booting Linux\r\n"
// Output: "[    1.0] Booting Linux\n"
func CleanLog(log string) string {
	log = ansi.Strip(log)
	log = strings.ReplaceAll(log, "\r\n", "\n")
	return strings.ReplaceAll(log, "\r", "\n")
}
