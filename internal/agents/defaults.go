// Package agents resolves layered per-role configuration into the
// effective config one request runs with.
package agents

const (
	// DefaultTemperature applies when no layer sets one.
	DefaultTemperature = 0.7

	// DefaultMaxTokens applies to roles without a specific budget.
	DefaultMaxTokens = 2048
)

// roleMaxTokens gives verbose roles a bigger output budget. Receipt
// extraction and settlement math return structured snippets;
// reconciliation writes longer narratives.
var roleMaxTokens = map[string]int{
	"receipt":        1024,
	"categorize":     256,
	"settlement":     1024,
	"reconciliation": 4096,
	"concierge":      2048,
}

// MaxTokensForRole returns the default output budget for a role.
func MaxTokensForRole(role string) int {
	if n, ok := roleMaxTokens[role]; ok {
		return n
	}
	return DefaultMaxTokens
}
