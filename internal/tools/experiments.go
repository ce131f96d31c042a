package tools

import (
	"context"
	"net/http"
	"net/url"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
)

func createListingExperimentTool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "create_listing_experiment",
		Description: "Create a store-listing experiment with one variant and commit the edit.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "experiment_id", Type: TypeString, Required: true, Description: "Identifier for the new experiment"},
			{Name: "variant_id", Type: TypeString, Required: true, Description: "Identifier for the experiment variant"},
			{Name: "traffic_percent", Type: TypeInteger, Description: "Traffic share for the variant, 1-100 (default 50)"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			experimentID := args.String("experiment_id")
			if experimentID == "" {
				return nil, playapi.Validationf("experiment_id", "must not be empty")
			}
			variantID := args.String("variant_id")
			if variantID == "" {
				return nil, playapi.Validationf("variant_id", "must not be empty")
			}
			traffic := args.Int("traffic_percent", 50)
			if traffic < 1 || traffic > 100 {
				return nil, playapi.Validationf("traffic_percent", "must be between 1 and 100")
			}

			editID, err := beginEdit(ctx, client, pkg)
			if err != nil {
				return nil, err
			}
			raw, err := client.Do(ctx, playapi.Call{
				Method: http.MethodPost,
				URL: client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) +
					"/edits/" + url.PathEscape(editID) + "/experiments",
				Body: map[string]any{
					"experimentId":   experimentID,
					"trafficPercent": traffic,
					"type":           "STORE_LISTING",
					"variants": []map[string]any{
						{"experimentVariantId": variantID},
					},
				},
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true, // scoped to the uncommitted edit
			})
			if err != nil {
				return nil, err
			}
			if _, err := commitEdit(ctx, client, pkg, editID, false); err != nil {
				return nil, err
			}
			return decodeObject(raw, "experiment response")
		},
	}
}
