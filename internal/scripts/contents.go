package scripts

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Digest returns the hex encoded BLAKE2b-256 digest of the script contents.
// Journals store it alongside each applied script so out-of-band edits to an
// already applied script remain detectable.
func Digest(contents string) string {
	sum := blake2b.Sum256([]byte(contents))
	return hex.EncodeToString(sum[:])
}

// ExpandVariables replaces $name$ tokens in the script contents with their
// configured values. Unknown tokens are left untouched.
func ExpandVariables(contents string, variables map[string]string) string {
	if len(variables) == 0 {
		return contents
	}
	replacements := make([]string, 0, len(variables)*2)
	for name, value := range variables {
		replacements = append(replacements, "$"+name+"$", value)
	}
	return strings.NewReplacer(replacements...).Replace(contents)
}

// SplitStatements splits script contents into individual SQL statements on
// semicolon boundaries, dropping empty fragments and comment-only lines.
func SplitStatements(contents string) []string {
	var statements []string
	for _, stmt := range strings.Split(contents, ";") {
		lines := strings.Split(stmt, "\n")
		var kept []string
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			kept = append(kept, line)
		}
		if len(kept) == 0 {
			continue
		}
		statements = append(statements, strings.Join(kept, "\n"))
	}
	return statements
}
