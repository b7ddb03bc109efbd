package catalog

// DefaultGlobalModel is used when a role has no specific default.
const DefaultGlobalModel = "anthropic/claude-3.5-sonnet"

// roleModels maps each agent role to its default model. Vision roles
// need a vision-capable model; cheap classification work goes to the
// cheapest adequate model.
var roleModels = map[string]string{
	"receipt":        "anthropic/claude-3.5-sonnet",
	"categorize":     "anthropic/claude-3-haiku",
	"settlement":     "openai/gpt-4o-mini",
	"reconciliation": "anthropic/claude-3.5-sonnet",
	"concierge":      "openai/gpt-4o",
}

// DefaultModelForRole returns the default model id for a role. Unknown
// roles get the global default.
func (r *Registry) DefaultModelForRole(role string) string {
	if id, ok := roleModels[role]; ok {
		return id
	}
	return DefaultGlobalModel
}

// Roles returns the role names that have explicit model defaults.
func Roles() []string {
	return []string{"receipt", "categorize", "settlement", "reconciliation", "concierge"}
}
