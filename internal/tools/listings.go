package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
)

// beginEdit opens a fresh Publisher API edit and returns its id. Read-only
// listing lookups never commit; abandoned edits expire upstream on their own.
func beginEdit(ctx context.Context, client *playapi.Client, pkg string) (string, error) {
	raw, err := client.Do(ctx, playapi.Call{
		Method:     http.MethodPost,
		URL:        client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) + "/edits",
		Body:       map[string]any{},
		Scope:      playapi.ScopeAndroidPublisher,
		Idempotent: true, // inserting an edit creates no visible state
	})
	if err != nil {
		return "", err
	}
	var edit struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &edit); err != nil {
		return "", playapi.Internalf(err, "decode edit response")
	}
	if edit.ID == "" {
		return "", playapi.Internalf(nil, "edit response missing id")
	}
	return edit.ID, nil
}

// commitEdit commits the edit, making its changes live. Committing is not
// idempotent-safe, so the client only retries it pre-response. Play sometimes
// requires changesNotSentForReview after a rejection; callers pass it through.
func commitEdit(ctx context.Context, client *playapi.Client, pkg, editID string, changesNotSentForReview bool) (map[string]any, error) {
	q := url.Values{}
	if changesNotSentForReview {
		q.Set("changesNotSentForReview", "true")
	}
	raw, err := client.Do(ctx, playapi.Call{
		Method: http.MethodPost,
		URL: client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) +
			"/edits/" + url.PathEscape(editID) + ":commit",
		Query: q,
		Scope: playapi.ScopeAndroidPublisher,
	})
	if err != nil {
		return nil, err
	}
	return decodeObject(raw, "commit response")
}

func listingURL(client *playapi.Client, pkg, editID, lang string) string {
	return client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) +
		"/edits/" + url.PathEscape(editID) + "/listings/" + url.PathEscape(lang)
}

func listLocalizedListingsTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "list_localized_listings",
		Description: "Return all localized store listings for a package.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method: http.MethodGet,
				URL: client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) +
					"/edits/" + url.PathEscape(editID) + "/listings",
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}
			return decodeObject(raw, "listings response")
		},
	}
}

func getListingTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "get_listing",
		Description: "Get a single localized store listing by BCP-47 language, e.g. 'en-US'.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "language", Type: TypeString, Required: true, Description: "BCP-47 language tag of the listing"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			lang := args.String("language")
			if lang == "" {
				return nil, playapi.Validationf("language", "must not be empty")
			}
			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodGet,
				URL:        listingURL(client, pkg, editID, lang),
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}
			return decodeObject(raw, "listing response")
		},
	}
}

// listingBody collects the optional text fields shared by patch and update.
func listingBody(args Args) map[string]any {
	body := map[string]any{}
	if args.Has("title") {
		body["title"] = args.String("title")
	}
	if args.Has("short_description") {
		body["shortDescription"] = args.String("short_description")
	}
	if args.Has("full_description") {
		body["fullDescription"] = args.String("full_description")
	}
	if args.Has("video") {
		body["video"] = args.String("video")
	}
	return body
}

func patchListingTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "patch_listing",
		Description: "Patch a localized store listing; only the provided fields change. Commits the edit.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "language", Type: TypeString, Required: true, Description: "BCP-47 language tag of the listing"},
			{Name: "title", Type: TypeString, Description: "New app title (limit 30 characters)"},
			{Name: "short_description", Type: TypeString, Description: "New short description (limit 80 characters)"},
			{Name: "full_description", Type: TypeString, Description: "New full description (limit 4000 characters)"},
			{Name: "video", Type: TypeString, Description: "Promo video URL"},
			{Name: "changes_not_sent_for_review", Type: TypeBoolean, Description: "Commit without sending changes for review (needed after a Play rejection)"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			lang := args.String("language")
			if lang == "" {
				return nil, playapi.Validationf("language", "must not be empty")
			}
			body := listingBody(args)
			if len(body) == 0 {
				return nil, playapi.Validationf("title", "at least one listing field must be provided")
			}

			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodPatch,
				URL:        listingURL(client, pkg, editID, lang),
				Body:       body,
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true, // scoped to the uncommitted edit
			})
			if err != nil {
				return nil, err
			}
			if _, err := commitEdit(ctx, client, pkg, editID, args.Bool("changes_not_sent_for_review", false)); err != nil {
				return nil, err
			}
			return decodeObject(raw, "listing response")
		},
	}
}

func updateListingTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "update_listing",
		Description: "Create or replace a localized store listing (full update). Commits the edit.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "language", Type: TypeString, Required: true, Description: "BCP-47 language tag of the listing"},
			{Name: "title", Type: TypeString, Required: true, Description: "App title (limit 30 characters)"},
			{Name: "short_description", Type: TypeString, Required: true, Description: "Short description (limit 80 characters)"},
			{Name: "full_description", Type: TypeString, Required: true, Description: "Full description (limit 4000 characters)"},
			{Name: "video", Type: TypeString, Description: "Promo video URL"},
			{Name: "changes_not_sent_for_review", Type: TypeBoolean, Description: "Commit without sending changes for review (needed after a Play rejection)"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			lang := args.String("language")
			if lang == "" {
				return nil, playapi.Validationf("language", "must not be empty")
			}
			body := map[string]any{
				"title":            args.String("title"),
				"shortDescription": args.String("short_description"),
				"fullDescription":  args.String("full_description"),
			}
			if v := args.String("video"); v != "" {
				body["video"] = v
			}

			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodPut,
				URL:        listingURL(client, pkg, editID, lang),
				Body:       body,
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}
			if _, err := commitEdit(ctx, client, pkg, editID, args.Bool("changes_not_sent_for_review", false)); err != nil {
				return nil, err
			}
			return decodeObject(raw, "listing response")
		},
	}
}

func listLocaleCoverageTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "list_locale_coverage",
		Description: "Report which locales have a store listing, optionally compared against a target set.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "target_locales", Type: TypeString, Description: "Comma-separated BCP-47 tags to compare coverage against"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method: http.MethodGet,
				URL: client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) +
					"/edits/" + url.PathEscape(editID) + "/listings",
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}

			var resp struct {
				Listings []struct {
					Language string `json:"language"`
				} `json:"listings"`
			}
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, playapi.Internalf(err, "decode listings response")
			}

			seen := map[string]bool{}
			present := []string{}
			for _, l := range resp.Listings {
				if l.Language != "" && !seen[l.Language] {
					seen[l.Language] = true
					present = append(present, l.Language)
				}
			}
			sort.Strings(present)

			result := map[string]any{
				"present_locales": present,
				"count":           len(present),
			}
			if targets := splitCSV(args.String("target_locales")); len(targets) > 0 {
				targetSet := map[string]bool{}
				for _, l := range targets {
					targetSet[l] = true
				}
				missing := []string{}
				for _, l := range targets {
					if !seen[l] {
						missing = append(missing, l)
					}
				}
				extra := []string{}
				for _, l := range present {
					if !targetSet[l] {
						extra = append(extra, l)
					}
				}
				sort.Strings(missing)
				result["target_locales"] = targets
				result["missing_from_targets"] = missing
				result["extra_vs_targets"] = extra
			}
			return result, nil
		},
	}
}

func cloneListingToLocaleTool(client *playapi.Client) *Definition {
	return &Definition{
		Name: "clone_listing_to_locale",
		Description: "Copy a localized listing's text (and optionally video) from one locale to another. " +
			"Commits the edit. Image assets are not copied; Play has no server-side copy for them.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "src_language", Type: TypeString, Required: true, Description: "BCP-47 tag of the source listing"},
			{Name: "dst_language", Type: TypeString, Required: true, Description: "BCP-47 tag of the destination listing"},
			{Name: "copy_text", Type: TypeBoolean, Description: "Copy title and descriptions (default true)"},
			{Name: "copy_video", Type: TypeBoolean, Description: "Copy the promo video URL (default true)"},
			{Name: "changes_not_sent_for_review", Type: TypeBoolean, Description: "Commit without sending changes for review (needed after a Play rejection)"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			src := args.String("src_language")
			if src == "" {
				return nil, playapi.Validationf("src_language", "must not be empty")
			}
			dst := args.String("dst_language")
			if dst == "" {
				return nil, playapi.Validationf("dst_language", "must not be empty")
			}
			if dst == src {
				return nil, playapi.Validationf("dst_language", "must differ from src_language")
			}

			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodGet,
				URL:        listingURL(client, pkg, editID, src),
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}
			srcListing, err := decodeObject(raw, "source listing")
			if err != nil {
				return nil, err
			}

			body := map[string]any{}
			if args.Bool("copy_text", true) {
				for _, k := range []string{"title", "shortDescription", "fullDescription"} {
					if v, ok := srcListing[k]; ok {
						body[k] = v
					}
				}
			}
			if args.Bool("copy_video", true) {
				if v, ok := srcListing["video"]; ok {
					body["video"] = v
				}
			}

			raw, err = client.Do(ctx, playapi.Call{
				Method:     http.MethodPut,
				URL:        listingURL(client, pkg, editID, dst),
				Body:       body,
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}
			dstListing, err := decodeObject(raw, "destination listing")
			if err != nil {
				return nil, err
			}
			if _, err := commitEdit(ctx, client, pkg, editID, args.Bool("changes_not_sent_for_review", false)); err != nil {
				return nil, err
			}
			return map[string]any{"dst_listing": dstListing}, nil
		},
	}
}

// splitCSV splits a comma-separated argument, dropping empty entries.
func splitCSV(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
