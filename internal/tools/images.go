package tools

import (
	"context"
	"net/http"
	"net/url"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
)

// imageTypes is the AppImageType enum of the Publisher API.
var imageTypes = map[string]bool{
	"phoneScreenshots":     true,
	"sevenInchScreenshots": true,
	"tenInchScreenshots":   true,
	"tvScreenshots":        true,
	"wearScreenshots":      true,
	"icon":                 true,
	"featureGraphic":       true,
	"tvBanner":             true,
}

func requireImageArgs(args Args) (lang, imageType string, err error) {
	lang = args.String("language")
	if lang == "" {
		return "", "", playapi.Validationf("language", "must not be empty")
	}
	imageType = args.String("image_type")
	if !imageTypes[imageType] {
		return "", "", playapi.Validationf("image_type", "not a valid image type")
	}
	return lang, imageType, nil
}

func imagesURL(client *playapi.Client, pkg, editID, lang, imageType string) string {
	return listingURL(client, pkg, editID, lang) + "/" + imageType
}

func imagesListTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "images_list",
		Description: "List store-listing images for a language and image type, e.g. 'phoneScreenshots' or 'icon'.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "language", Type: TypeString, Required: true, Description: "BCP-47 language tag of the listing"},
			{Name: "image_type", Type: TypeString, Required: true, Description: "AppImageType, e.g. 'phoneScreenshots', 'featureGraphic', 'icon'"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			lang, imageType, err := requireImageArgs(args)
			if err != nil {
				return nil, err
			}
			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodGet,
				URL:        imagesURL(client, pkg, editID, lang, imageType),
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}
			return decodeObject(raw, "images response")
		},
	}
}

func imagesDeleteAllTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "images_deleteall",
		Description: "Delete all store-listing images for a language and image type. Commits the edit.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "language", Type: TypeString, Required: true, Description: "BCP-47 language tag of the listing"},
			{Name: "image_type", Type: TypeString, Required: true, Description: "AppImageType, e.g. 'phoneScreenshots', 'featureGraphic', 'icon'"},
			{Name: "changes_not_sent_for_review", Type: TypeBoolean, Description: "Commit without sending changes for review (needed after a Play rejection)"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			lang, imageType, err := requireImageArgs(args)
			if err != nil {
				return nil, err
			}
			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodDelete,
				URL:        imagesURL(client, pkg, editID, lang, imageType),
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true, // scoped to the uncommitted edit
			})
			if err != nil {
				return nil, err
			}
			if _, err := commitEdit(ctx, client, pkg, editID, args.Bool("changes_not_sent_for_review", false)); err != nil {
				return nil, err
			}
			return decodeObject(raw, "deleteall response")
		},
	}
}

func detailsURL(client *playapi.Client, pkg, editID string) string {
	return client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) +
		"/edits/" + url.PathEscape(editID) + "/details"
}

func detailsGetTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "details_get",
		Description: "Fetch app details: default language and support contacts.",
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
				Method:     http.MethodGet,
				URL:        detailsURL(client, pkg, editID),
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				return nil, err
			}
			return decodeObject(raw, "details response")
		},
	}
}

func detailsUpdateTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "details_update",
		Description: "Update app details; only the provided fields are sent. Commits the edit.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "default_language", Type: TypeString, Description: "Default BCP-47 language of the listing"},
			{Name: "contact_email", Type: TypeString, Description: "Support contact email"},
			{Name: "contact_phone", Type: TypeString, Description: "Support contact phone"},
			{Name: "contact_website", Type: TypeString, Description: "Support website URL"},
			{Name: "changes_not_sent_for_review", Type: TypeBoolean, Description: "Commit without sending changes for review (needed after a Play rejection)"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			body := map[string]any{}
			for arg, key := range map[string]string{
				"default_language": "defaultLanguage",
				"contact_email":    "contactEmail",
				"contact_phone":    "contactPhone",
				"contact_website":  "contactWebsite",
			} {
				if args.Has(arg) {
					body[key] = args.String(arg)
				}
			}
			if len(body) == 0 {
				return nil, playapi.Validationf("default_language", "at least one details field must be provided")
			}

			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodPut,
				URL:        detailsURL(client, pkg, editID),
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
			return decodeObject(raw, "details response")
		},
	}
}
