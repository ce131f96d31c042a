package tools

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/RobinCoderZhao/play-console-mcp/internal/playapi"
)

// Asset requirements from Play Console Help. Icons and feature graphics need
// exact dimensions; screenshots share one size-and-ratio envelope.
const (
	iconSize           = 512
	featureWidth       = 1024
	featureHeight      = 500
	screenshotMinPx    = 320
	screenshotMaxPx    = 3840
	screenshotMaxRatio = 2.0
)

func assetMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

func assetSpecCheckTool() *Definition {
	return &Definition{
		Name:        "asset_spec_check",
		Description: "Validate a local image file against Play size and format requirements for its image type. Runs locally, no API call.",
		Fields: []Field{
			{Name: "image_type", Type: TypeString, Required: true, Description: "AppImageType, e.g. 'icon', 'featureGraphic', 'phoneScreenshots'"},
			{Name: "file_path", Type: TypeString, Required: true, Description: "Local path of the image file to check"},
		},
		Handler: func(ctx context.Context, args Args) (any, error) {
			imageType := args.String("image_type")
			if !imageTypes[imageType] {
				return nil, playapi.Validationf("image_type", "not a valid image type")
			}
			path := args.String("file_path")
			f, err := os.Open(path)
			if err != nil {
				return nil, playapi.Validationf("file_path", "cannot open file: %v", err)
			}
			defer f.Close()

			cfg, _, err := image.DecodeConfig(f)
			if err != nil {
				return nil, playapi.Validationf("file_path", "not a decodable PNG or JPEG image")
			}
			mime := assetMIME(path)
			w, h := cfg.Width, cfg.Height

			var issues []string
			switch imageType {
			case "icon":
				if mime != "image/png" {
					issues = append(issues, fmt.Sprintf("icon must be PNG (got %s)", mime))
				}
				if w != iconSize || h != iconSize {
					issues = append(issues, fmt.Sprintf("icon must be exactly %dx%d (got %dx%d)", iconSize, iconSize, w, h))
				}
			case "featureGraphic":
				if mime != "image/png" && mime != "image/jpeg" {
					issues = append(issues, fmt.Sprintf("feature graphic must be JPEG or PNG (got %s)", mime))
				}
				if w != featureWidth || h != featureHeight {
					issues = append(issues, fmt.Sprintf("feature graphic must be exactly %dx%d (got %dx%d)", featureWidth, featureHeight, w, h))
				}
			default:
				if mime != "image/png" && mime != "image/jpeg" {
					issues = append(issues, fmt.Sprintf("screenshot must be JPEG or PNG (got %s)", mime))
				}
				long, short := w, h
				if short > long {
					long, short = short, long
				}
				if short < screenshotMinPx {
					issues = append(issues, fmt.Sprintf("shortest side must be at least %dpx (got %dpx)", screenshotMinPx, short))
				}
				if long > screenshotMaxPx {
					issues = append(issues, fmt.Sprintf("longest side must be at most %dpx (got %dpx)", screenshotMaxPx, long))
				}
				if float64(long) > float64(short)*screenshotMaxRatio {
					issues = append(issues, fmt.Sprintf("longest side cannot exceed %.0fx the shortest side (got %d/%d)", screenshotMaxRatio, long, short))
				}
			}

			if issues == nil {
				issues = []string{}
			}
			return map[string]any{
				"file_path":  path,
				"image_type": imageType,
				"mime":       mime,
				"width":      w,
				"height":     h,
				"ok":         len(issues) == 0,
				"issues":     issues,
			}, nil
		},
	}
}
