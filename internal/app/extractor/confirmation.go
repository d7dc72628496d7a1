package extractor

import (
	"regexp"
	"strings"
)

// ConfirmationPredicate decides whether an utterance affirms the order
type ConfirmationPredicate func(utterance string) bool

var DefaultConfirmationPhrases = []string{"confermo", "va bene", "ok", "procedi", "perfetto", "confermiamo"}

// PhraseMatcher matches any of the phrases as whole words, ignoring case
func PhraseMatcher(phrases []string) ConfirmationPredicate {
	quoted := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		words := strings.Fields(regexp.QuoteMeta(strings.ToLower(p)))
		quoted = append(quoted, strings.Join(words, `\s+`))
	}
	if len(quoted) == 0 {
		return func(string) bool { return false }
	}
	re := regexp.MustCompile(`(?i)(?:^|[^\p{L}])(?:` + strings.Join(quoted, "|") + `)(?:[^\p{L}]|$)`)
	return func(utterance string) bool {
		return re.MatchString(utterance)
	}
}
