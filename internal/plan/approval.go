package plan

import "regexp"

// approvalPattern matches affirmative-intent phrases on word boundaries.
// Boundary matching keeps short tokens from firing inside other words
// ("yes" must not match "yet", "ok" must not match "broken").
var approvalPattern = regexp.MustCompile(`(?i)\b(approved?|lgtm|looks good|go ahead|proceed|yes|ok(ay)?|confirmed|ship it|sounds good)\b`)

// IsApproval classifies a follow-up message as plan approval. Applied in
// both waiting states: a user may approve without a clarification round
// ever happening.
func IsApproval(message string) bool {
	return approvalPattern.MatchString(message)
}
