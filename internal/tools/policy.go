package tools

import (
	"context"
	"regexp"
	"strings"
)

// Play metadata length limits (Play Console Help; the full-description cap
// is a soft limit in the docs).
const (
	titleLimit     = 30
	shortDescLimit = 80
	fullDescLimit  = 4000
)

var (
	emojiRe       = regexp.MustCompile(`[\x{1F300}-\x{1F6FF}\x{1F700}-\x{1FAFF}\x{2700}-\x{27BF}]`)
	repeatPunctRe = regexp.MustCompile(`([!?*~_\-]{2,}|\.{3,})`)

	// Performance / ranking / promo terms Play policy disallows in metadata.
	bannedTerms = []string{
		"#1", "no.1", "best", "top", "popular", "award", "editor's choice",
		"free", "sale", "discount", "cashback", "% off", "limited time",
	}
)

// PolicyIssue is one finding from the metadata lint.
type PolicyIssue struct {
	Level   string `json:"level"` // "error" or "warning"
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func validateMetadataPolicyTool() *Definition {
	return &Definition{
		Name:        "validate_metadata_policy",
		Description: "Lint store-listing metadata (title, short and full description) against Play policy and length limits. Runs locally, no API call.",
		Fields: []Field{
			{Name: "title", Type: TypeString, Description: "App title to check (limit 30 characters)"},
			{Name: "short_description", Type: TypeString, Description: "Short description to check (limit 80 characters)"},
			{Name: "full_description", Type: TypeString, Description: "Full description to check (limit 4000 characters)"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			var issues []PolicyIssue
			metrics := map[string]any{}

			if args.Has("title") {
				title := args.String("title")
				metrics["title_length"] = len([]rune(title))
				issues = append(issues, lintField("title", "TITLE", title, titleLimit, true)...)
			}
			if args.Has("short_description") {
				short := args.String("short_description")
				metrics["short_description_length"] = len([]rune(short))
				issues = append(issues, lintField("short_description", "SHORT", short, shortDescLimit, true)...)
			}
			if args.Has("full_description") {
				full := args.String("full_description")
				metrics["full_description_length"] = len([]rune(full))
				issues = append(issues, lintField("full_description", "FULL", full, fullDescLimit, false)...)
			}

			if issues == nil {
				issues = []PolicyIssue{}
			}
			errorCount := 0
			for _, i := range issues {
				if i.Level == "error" {
					errorCount++
				}
			}
			return map[string]any{
				"ok":      errorCount == 0,
				"issues":  issues,
				"metrics": metrics,
			}, nil
		},
	}
}

// lintField applies the shared rules to one metadata string. strict enables
// the emoji and punctuation checks that apply to title and short description
// but not to the full description.
func lintField(field, codePrefix, value string, limit int, strict bool) []PolicyIssue {
	var issues []PolicyIssue
	if len([]rune(value)) > limit {
		issues = append(issues, PolicyIssue{
			Level: "error", Field: field, Code: codePrefix + "_LEN",
			Message: field + " exceeds the limit",
		})
	}
	if strict {
		if emojiRe.MatchString(value) {
			issues = append(issues, PolicyIssue{
				Level: "error", Field: field, Code: codePrefix + "_EMOJI",
				Message: field + " contains emojis or emoticons",
			})
		}
		if repeatPunctRe.MatchString(value) {
			issues = append(issues, PolicyIssue{
				Level: "warning", Field: field, Code: codePrefix + "_PUNCT",
				Message: "avoid repeated punctuation in " + field,
			})
		}
	}
	lower := strings.ToLower(value)
	for _, term := range bannedTerms {
		if strings.Contains(lower, term) {
			level := "error"
			if !strict {
				level = "warning"
			}
			issues = append(issues, PolicyIssue{
				Level: level, Field: field, Code: codePrefix + "_PROMO",
				Message: "disallowed performance/promo terms in " + field,
			})
			break
		}
	}
	return issues
}
