package room

import (
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength   = 6
)

type CodeGenerator func() (string, error)

func NewCode() (string, error) {
	return gonanoid.Generate(codeAlphabet, CodeLength)
}

// NormalizeCode makes codes typed by hand ("a1b2c3 ") match stored ones.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}
