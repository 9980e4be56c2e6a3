package ledger

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 5
)

// CodeGenerator mints human-shareable token codes like "UTBK-7K2XQ".
// Five characters of a 36-symbol alphabet give ~60M combinations, so
// collisions at expected volumes are rare; the engine regenerates on the
// ones that do happen.
type CodeGenerator struct {
	prefix string
}

func NewCodeGenerator(prefix string) *CodeGenerator {
	return &CodeGenerator{prefix: prefix}
}

func (g *CodeGenerator) Generate() (string, error) {
	b := make([]byte, codeLength)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("error while generating token code. Err: %w", err)
	}

	var sb strings.Builder
	sb.Grow(len(g.prefix) + 1 + codeLength)
	sb.WriteString(g.prefix)
	sb.WriteByte('-')
	for _, v := range b {
		sb.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
	}

	return sb.String(), nil
}
