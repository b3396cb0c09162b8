package nodes

import (
	"context"
	"fmt"
	"log"

	"github.com/pixelmuse/pixelmuse/pkg/graph"
)

// TypeGenerateVideo generates a short video clip from a prompt, optionally
// animating an upstream image.
const TypeGenerateVideo = "generate-video"

// CreditsPerVideo is the flat cost of one video generation.
const CreditsPerVideo = 20

func generateVideoDefinition(deps Deps) Definition {
	return Definition{
		Type:  TypeGenerateVideo,
		Label: "Generate Video",
		Inputs: []graph.Port{
			{Name: "trigger", DataType: TypeSignal},
			{Name: "prompt", DataType: TypeText},
			{Name: "image_url", DataType: TypeImage},
		},
		Outputs: []graph.Port{
			{Name: "video_url", DataType: TypeVideo},
		},
		Config: []ConfigField{
			{Name: "model", Type: "select", Default: "kling-lite", Options: []string{"kling-lite", "kling-pro"}},
			{Name: "prompt", Type: "string"},
			{Name: "duration", Type: "number", Default: float64(5)},
		},
		Execute: func(ctx context.Context, in Input) (*Result, error) {
			prompt, ok := stringInput(in.Upstream, "prompt")
			if !ok {
				prompt = stringConfig(in.Config, "prompt", "")
			}
			imageURL, _ := stringInput(in.Upstream, "image_url")
			if prompt == "" && imageURL == "" {
				return nil, fmt.Errorf("video generation needs a prompt or an input image")
			}

			url, err := deps.Provider.GenerateVideo(ctx, VideoRequest{
				Model:    stringConfig(in.Config, "model", "kling-lite"),
				Prompt:   prompt,
				ImageURL: imageURL,
				Duration: intConfig(in.Config, "duration", 5),
			})
			if err != nil {
				return nil, err
			}

			output := map[string]interface{}{
				"video_url": url,
				"prompt":    prompt,
			}
			if err := deps.Credits.Deduct(ctx, in.UserID, CreditsPerVideo, "generate-video"); err != nil {
				log.Printf("credit deduction failed for user %s after video generation: %v", in.UserID, err)
				output["deduction_failed"] = true
			}

			return &Result{Output: output, CreditsUsed: CreditsPerVideo}, nil
		},
	}
}
