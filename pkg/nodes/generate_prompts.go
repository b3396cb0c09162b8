package nodes

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pixelmuse/pixelmuse/pkg/graph"
)

// TypeGeneratePrompts generates a batch of image prompts from a theme.
const TypeGeneratePrompts = "generate-prompts"

// CreditsPerPromptBatch is the flat cost of one generate-prompts run.
const CreditsPerPromptBatch = 1

func generatePromptsDefinition(deps Deps) Definition {
	return Definition{
		Type:  TypeGeneratePrompts,
		Label: "Generate Prompts",
		Inputs: []graph.Port{
			{Name: "trigger", DataType: TypeSignal},
		},
		Outputs: []graph.Port{
			{Name: "prompts", DataType: TypePrompts},
		},
		Config: []ConfigField{
			{Name: "theme", Type: "string", Required: true},
			{Name: "style", Type: "string", Default: "photorealistic"},
			{Name: "count", Type: "number", Default: float64(5)},
			{Name: "content_mode", Type: "select", Default: "standard", Options: []string{"standard", "artistic"}},
			{Name: "custom_style", Type: "string", ShowWhen: &ShowWhen{Field: "style", Equals: "custom"}},
		},
		Execute: func(ctx context.Context, in Input) (*Result, error) {
			theme, err := requireString(in.Config, "theme")
			if err != nil {
				return nil, err
			}
			style := stringConfig(in.Config, "style", "photorealistic")
			if style == "custom" {
				style = stringConfig(in.Config, "custom_style", "photorealistic")
			}
			count := intConfig(in.Config, "count", 5)
			if count < 1 {
				count = 1
			}
			mode := stringConfig(in.Config, "content_mode", "standard")

			instruction := fmt.Sprintf(
				"Write %d distinct %s image generation prompts about %q, content mode %s. One prompt per line, no numbering.",
				count, style, theme, mode)

			text, err := deps.Provider.GenerateText(ctx, instruction)
			if err != nil {
				return nil, fmt.Errorf("prompt generation failed: %w", err)
			}

			prompts := splitPrompts(text, count)
			if len(prompts) == 0 {
				return nil, fmt.Errorf("prompt generation returned no usable prompts")
			}

			output := map[string]interface{}{
				"prompts": prompts,
				"theme":   theme,
				"style":   style,
			}
			if err := deps.Credits.Deduct(ctx, in.UserID, CreditsPerPromptBatch, "generate-prompts"); err != nil {
				// Output already produced; keep it and surface the miss.
				log.Printf("credit deduction failed for user %s after prompt generation: %v", in.UserID, err)
				output["deduction_failed"] = true
			}

			return &Result{Output: output, CreditsUsed: CreditsPerPromptBatch}, nil
		},
	}
}

// splitPrompts turns provider text into at most limit clean prompt lines.
func splitPrompts(text string, limit int) []string {
	var prompts []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" {
			continue
		}
		prompts = append(prompts, line)
		if len(prompts) == limit {
			break
		}
	}
	return prompts
}
