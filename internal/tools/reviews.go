package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
)

const (
	defaultMaxResults = 50
	// Upstream page cap for reviews.list.
	maxReviewResults = 500
)

var packageNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z][a-zA-Z0-9_]*)+$`)

// requirePackage rejects package names that cannot be valid on Play before
// any upstream call is attempted.
func requirePackage(args Args) (string, error) {
	pkg := args.String("package_name")
	if !packageNameRe.MatchString(pkg) {
		return "", playapi.Validationf("package_name", "not a valid Android package name")
	}
	return pkg, nil
}

func listReviewsTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "list_reviews",
		Description: "Fetch recent Play Store reviews for a package, newest first.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name, e.g. 'com.example.app'"},
			{Name: "max_results", Type: TypeInteger, Description: "Maximum reviews to return (default 50, max 500)"},
			{Name: "translation_language", Type: TypeString, Description: "Optional BCP-47 code for translated review text, e.g. 'en' or 'de'"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			max := args.Int("max_results", defaultMaxResults)
			if max < 1 {
				return nil, playapi.Validationf("max_results", "must be at least 1")
			}
			if max > maxReviewResults {
				max = maxReviewResults
			}

			q := url.Values{"maxResults": {strconv.Itoa(max)}}
			if lang := args.String("translation_language"); lang != "" {
				q.Set("translationLanguage", lang)
			}

			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodGet,
				URL:        client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) + "/reviews",
				Query:      q,
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}

			var resp struct {
				Reviews []json.RawMessage `json:"reviews"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, playapi.Internalf(err, "decode reviews response")
			}
			// The upstream may hand back a full page regardless of maxResults;
			// the tool contract is exact, so truncate while keeping upstream
			// order (newest first).
			if len(resp.Reviews) > max {
				resp.Reviews = resp.Reviews[:max]
			}
			if resp.Reviews == nil {
				resp.Reviews = []json.RawMessage{}
			}
			return map[string]any{"reviews": resp.Reviews}, nil
		},
	}
}

func replyToReviewTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "reply_to_review",
		Description: "Post a developer reply to a Play Store review.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "review_id", Type: TypeString, Required: true, Description: "Identifier of the review to reply to"},
			{Name: "reply_text", Type: TypeString, Required: true, Description: "Text of the developer reply"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			reviewID := args.String("review_id")
			if reviewID == "" {
				return nil, playapi.Validationf("review_id", "must not be empty")
			}
			replyText := args.String("reply_text")
			if strings.TrimSpace(replyText) == "" {
				return nil, playapi.Validationf("reply_text", "must not be empty")
			}

			// Replying is not idempotent-safe: the client only retries when
			// the request provably never produced a response upstream.
			raw, err := client.Do(ctx, playapi.Call{
				Method: http.MethodPost,
				URL: client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) +
					"/reviews/" + url.PathEscape(reviewID) + ":reply",
				Body:  map[string]string{"replyText": replyText},
				Scope: playapi.ScopeAndroidPublisher,
			})
			if err != nil {
				return nil, err
			}
			return decodeObject(raw, "reply response")
		},
	}
}

// decodeObject parses an upstream JSON object into a generic payload.
func decodeObject(raw json.RawMessage, what string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, playapi.Internalf(err, "decode %s", what)
	}
	return out, nil
}
