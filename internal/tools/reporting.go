package tools

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
)

const dateLayout = "2006-01-02"

// vitalsMetricSets maps tool names to the Reporting API metric set and its
// default metrics (the base rate plus the 7d/28d user-weighted variants).
var vitalsMetricSets = map[string]struct {
	set     string
	metrics []string
}{
	"crash_rate": {"crashRateMetricSet", []string{"crashRate", "crashRate7dUserWeighted", "crashRate28dUserWeighted"}},
	"anr_rate":   {"anrRateMetricSet", []string{"anrRate", "anrRate7dUserWeighted", "anrRate28dUserWeighted"}},
}

func crashRateTool(client *playapi.Client) *Definition {
	return vitalsTool(client, "crash_rate", "Query daily crash-rate metrics for a package over a date range.")
}

func anrRateTool(client *playapi.Client) *Definition {
	return vitalsTool(client, "anr_rate", "Query daily ANR-rate metrics for a package over a date range.")
}

func vitalsTool(client *playapi.Client, name, description string) *Definition {
	return &Definition{
		Name:        name,
		Description: description,
		Fields: []Field{
			{Name: "package_name", Type: TypeString, Required: true, Description: "Android package name"},
			{Name: "start_time", Type: TypeString, Required: true, Description: "Start date, YYYY-MM-DD (inclusive, UTC)"},
			{Name: "end_time", Type: TypeString, Required: true, Description: "End date, YYYY-MM-DD (inclusive, UTC)"},
			{Name: "metrics", Type: TypeString, Description: "Comma-separated metric names; defaults to the rate plus 7d/28d user-weighted variants"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			pkg, err := requirePackage(args)
			if err != nil {
				return nil, err
			}
			start, err := parseDay(args, "start_time")
			if err != nil {
				return nil, err
			}
			end, err := parseDay(args, "end_time")
			if err != nil {
				return nil, err
			}
			if end.Before(start) {
				return nil, playapi.Validationf("end_time", "must not be before start_time")
			}

			ms := vitalsMetricSets[name]
			metrics := ms.metrics
			if raw := args.String("metrics"); raw != "" {
				metrics = metrics[:0:0]
				for _, m := range strings.Split(raw, ",") {
					if m = strings.TrimSpace(m); m != "" {
						metrics = append(metrics, m)
					}
				}
				if len(metrics) == 0 {
					return nil, playapi.Validationf("metrics", "must name at least one metric")
				}
			}

			// The Reporting API aggregates per day; the range is pinned to
			// UTC day boundaries regardless of the caller's locale.
			body := map[string]any{
				"timelineSpec": map[string]any{
					"aggregationPeriod": "DAILY",
					"startTime":         start.Format(dateLayout) + "T00:00:00Z",
					"endTime":           end.Format(dateLayout) + "T23:59:59Z",
					"timezone":          "UTC",
				},
				"metrics":    metrics,
				"dimensions": []string{"versionCode"},
				"pageSize":   1000,
			}

			raw, err := client.Do(ctx, playapi.Call{
				Method:     http.MethodPost,
				URL:        client.ReportingBaseURL + "/apps/" + url.PathEscape(pkg) + "/" + ms.set + ":query",
				Body:       body,
				Scope:      playapi.ScopeReporting,
				Idempotent: true, // aggregation queries are pure reads
			})
			if err != nil {
				return nil, err
			}
			return decodeObject(raw, "vitals response")
		},
	}
}

// parseDay parses a YYYY-MM-DD argument as a UTC day.
func parseDay(args Args, field string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, args.String(field), time.UTC)
	if err != nil {
		return time.Time{}, playapi.Validationf(field, "expected a YYYY-MM-DD date")
	}
	return t, nil
}
