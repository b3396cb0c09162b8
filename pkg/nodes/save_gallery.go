package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/pixelmuse/pixelmuse/pkg/graph"
)

// TypeSaveGallery persists a generated asset into the user's library.
// No additional generation cost.
const TypeSaveGallery = "save-gallery"

func saveGalleryDefinition(deps Deps) Definition {
	return Definition{
		Type:  TypeSaveGallery,
		Label: "Save to Gallery",
		Inputs: []graph.Port{
			{Name: "image_url", DataType: TypeImage, Required: true},
		},
		Outputs: []graph.Port{
			{Name: "asset_id", DataType: TypeText},
		},
		Config: []ConfigField{
			{Name: "folder", Type: "string", Default: "workflows"},
			{Name: "tags", Type: "string"},
		},
		Execute: func(ctx context.Context, in Input) (*Result, error) {
			imageURL, ok := stringInput(in.Upstream, "image_url")
			if !ok {
				return nil, fmt.Errorf("save-gallery requires an image_url input")
			}

			folder := stringConfig(in.Config, "folder", "workflows")
			var tags []string
			for _, t := range strings.Split(stringConfig(in.Config, "tags", ""), ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}

			assetID, err := deps.Assets.SaveToGallery(ctx, in.UserID, imageURL, folder, tags)
			if err != nil {
				return nil, fmt.Errorf("failed to save asset: %w", err)
			}

			return &Result{Output: map[string]interface{}{
				"asset_id":  assetID,
				"image_url": imageURL,
				"folder":    folder,
			}}, nil
		},
	}
}
