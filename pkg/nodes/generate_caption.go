package nodes

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pixelmuse/pixelmuse/pkg/graph"
)

// TypeGenerateCaption writes a social caption for a generated image.
const TypeGenerateCaption = "generate-caption"

// CreditsPerCaption is the flat cost of one caption generation.
const CreditsPerCaption = 1

func generateCaptionDefinition(deps Deps) Definition {
	return Definition{
		Type:  TypeGenerateCaption,
		Label: "Generate Caption",
		Inputs: []graph.Port{
			{Name: "trigger", DataType: TypeSignal},
			{Name: "prompt", DataType: TypeText},
		},
		Outputs: []graph.Port{
			{Name: "caption", DataType: TypeText},
		},
		Config: []ConfigField{
			{Name: "tone", Type: "select", Default: "casual", Options: []string{"casual", "professional", "playful"}},
			{Name: "hashtags", Type: "boolean", Default: true},
		},
		Execute: func(ctx context.Context, in Input) (*Result, error) {
			subject, ok := stringInput(in.Upstream, "prompt")
			if !ok {
				return nil, fmt.Errorf("caption generation needs a prompt input")
			}
			tone := stringConfig(in.Config, "tone", "casual")

			instruction := fmt.Sprintf("Write a single %s social media caption for an image of: %s.", tone, subject)
			if boolConfig(in.Config, "hashtags") {
				instruction += " Include 3 relevant hashtags."
			}

			text, err := deps.Provider.GenerateText(ctx, instruction)
			if err != nil {
				return nil, fmt.Errorf("caption generation failed: %w", err)
			}
			caption := strings.TrimSpace(text)
			if caption == "" {
				return nil, fmt.Errorf("caption generation returned empty text")
			}

			output := map[string]interface{}{"caption": caption}
			if err := deps.Credits.Deduct(ctx, in.UserID, CreditsPerCaption, "generate-caption"); err != nil {
				log.Printf("credit deduction failed for user %s after caption generation: %v", in.UserID, err)
				output["deduction_failed"] = true
			}

			return &Result{Output: output, CreditsUsed: CreditsPerCaption}, nil
		},
	}
}
