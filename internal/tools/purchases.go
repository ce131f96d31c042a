package tools

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
)

// Purchase tokens are opaque base64url-flavored strings; anything outside
// that alphabet is rejected before the lookup call.
var purchaseTokenRe = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)

func getSubscriptionV2Tool(client *playapi.Client) *Definition {
	return &Definition{
		Name:        "get_subscription_v2",
		Description: "Verify a subscription purchase via purchases.subscriptionsv2.get. The token encodes the subscription, so no subscription ID is needed.",
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "purchase_token", Type: TypeString, Required: true, Description: "Purchase token issued to the client app"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			token := args.String("purchase_token")
			if !purchaseTokenRe.MatchString(token) {
				return nil, playapi.Validationf("purchase_token", "malformed purchase token")
			}

			raw, err := client.Do(ctx, playapi.Call{
				Method: http.MethodGet,
				URL: client.PublisherBaseURL + "/applications/" + url.PathEscape(pkg) +
					"/purchases/subscriptionsv2/tokens/" + url.PathEscape(token),
				Scope:      playapi.ScopeAndroidPublisher,
				Idempotent: true,
			})
			if err != nil {
				// A 404 is a definitive answer about the token, not a
				// transport problem; give it a typed, non-retriable shape.
				var pe *playapi.Error
				if errors.As(err, &pe) && pe.HTTPStatus == http.StatusNotFound {
					return nil, playapi.Permanent(http.StatusNotFound, pe, "subscription not found for purchase token")
				}
				return nil, err
			}
			return decodeObject(raw, "subscription response")
		},
	}
}
