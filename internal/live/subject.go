package live

import (
	"strings"

	"github.com/kainosnoema/remq/pkg/message"
)

// subjectToken maps one dot-separated channel token onto a valid NATS token.
// Tokens NATS cannot carry collapse to "_"; subscribers filter locally, so the
// mapping only has to be applied identically on both sides.
func subjectToken(tok string) string {
	if tok == "" || strings.ContainsAny(tok, "*>") {
		return "_"
	}
	return tok
}

// channelSubject returns the subject a channel publishes on.
func channelSubject(prefix, channel string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, tok := range strings.Split(channel, ".") {
		b.WriteByte('.')
		b.WriteString(subjectToken(tok))
	}
	return b.String()
}

// patternSubject returns a subject filter that covers every channel matched
// by pattern. Literal leading tokens are kept; the first token containing a
// glob metacharacter and everything after it become '>'.
func patternSubject(prefix, pattern string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, tok := range strings.Split(pattern, ".") {
		b.WriteByte('.')
		if !message.IsLiteral(tok) {
			b.WriteByte('>')
			break
		}
		b.WriteString(subjectToken(tok))
	}
	return b.String()
}

func subjectPrefix(namespace string) string {
	if namespace == "" {
		namespace = "default"
	}
	return "remq." + namespace + ".ch"
}
