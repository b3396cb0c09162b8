package nodes

import (
	"context"
	"fmt"
	"log"

	"github.com/pixelmuse/pixelmuse/pkg/graph"
)

// TypeGenerateImage generates one or more images from a prompt.
const TypeGenerateImage = "generate-image"

// CreditsPerImage is the per-model unit price charged per requested output.
const CreditsPerImage = 5

// negativePromptSuffix is appended to every image request. Keeping it fixed
// here means the editor never has to carry baseline quality terms around.
const negativePromptSuffix = "lowres, bad anatomy, extra fingers, watermark, jpeg artifacts"

// aspect ratio name -> pixel size accepted by the providers
var aspectRatioSizes = map[string]string{
	"square":    "1024x1024",
	"portrait":  "832x1216",
	"landscape": "1216x832",
	"wide":      "1344x768",
}

func generateImageDefinition(deps Deps) Definition {
	return Definition{
		Type:  TypeGenerateImage,
		Label: "Generate Image",
		Inputs: []graph.Port{
			{Name: "trigger", DataType: TypeSignal},
			{Name: "prompt", DataType: TypeText},
			{Name: "prompts", DataType: TypePrompts},
		},
		Outputs: []graph.Port{
			{Name: "image_url", DataType: TypeImage},
			{Name: "prompt", DataType: TypeText},
		},
		Config: []ConfigField{
			{Name: "model", Type: "select", Default: "flux-base", Options: []string{"flux-base", "flux-pro", "sdxl"}},
			{Name: "prompt", Type: "string"},
			{Name: "aspect_ratio", Type: "select", Default: "square", Options: []string{"square", "portrait", "landscape", "wide"}},
			{Name: "num_outputs", Type: "number", Default: float64(1)},
			{Name: "face_lock", Type: "boolean", Default: false},
			{Name: "character", Type: "string", ShowWhen: &ShowWhen{Field: "face_lock", Equals: true}},
		},
		Execute: func(ctx context.Context, in Input) (*Result, error) {
			prompt, err := resolvePrompt(in)
			if err != nil {
				return nil, err
			}

			model := stringConfig(in.Config, "model", "flux-base")
			size := aspectRatioSizes[stringConfig(in.Config, "aspect_ratio", "square")]
			if size == "" {
				size = aspectRatioSizes["square"]
			}
			n := intConfig(in.Config, "num_outputs", 1)
			if n < 1 {
				n = 1
			}

			// Face-lock: exchange the character's stored assets for signed
			// URLs; their presence switches the provider to image-to-image.
			var refs []string
			if boolConfig(in.Config, "face_lock") {
				characterID, err := requireString(in.Config, "character")
				if err != nil {
					return nil, fmt.Errorf("face_lock enabled: %w", err)
				}
				refs, err = deps.Assets.CharacterReferenceURLs(ctx, in.UserID, characterID)
				if err != nil {
					return nil, fmt.Errorf("failed to resolve face-lock references: %w", err)
				}
			}

			urls, err := deps.Provider.GenerateImages(ctx, ImageRequest{
				Model:           model,
				Prompt:          prompt,
				NegativePrompt:  negativePromptSuffix,
				Size:            size,
				N:               n,
				ReferenceImages: refs,
			})
			if err != nil {
				return nil, err
			}
			if len(urls) == 0 {
				return nil, fmt.Errorf("provider returned no images")
			}

			cost := CreditsPerImage * n
			output := map[string]interface{}{
				"image_url":  urls[0],
				"image_urls": urls,
				"prompt":     prompt,
				"model":      model,
			}
			if err := deps.Credits.Deduct(ctx, in.UserID, cost, "generate-image"); err != nil {
				// The images already exist; charging failed. Accepted loss,
				// recorded so the ledger can be reconciled later.
				log.Printf("credit deduction failed for user %s after image generation: %v", in.UserID, err)
				output["deduction_failed"] = true
			}

			return &Result{Output: output, CreditsUsed: cost}, nil
		},
	}
}

// resolvePrompt picks the prompt from, in order: the prompt input port, the
// first entry of the prompts input port, the config field.
func resolvePrompt(in Input) (string, error) {
	if p, ok := stringInput(in.Upstream, "prompt"); ok {
		return p, nil
	}
	if list, ok := in.Upstream["prompts"].([]string); ok && len(list) > 0 {
		return list[0], nil
	}
	if list, ok := in.Upstream["prompts"].([]interface{}); ok && len(list) > 0 {
		if p, ok := list[0].(string); ok && p != "" {
			return p, nil
		}
	}
	if p := stringConfig(in.Config, "prompt", ""); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no prompt available from inputs or config")
}
