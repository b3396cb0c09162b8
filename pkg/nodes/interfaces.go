package nodes

import "context"

// Provider performs generation API calls. Implementations own the HTTP
// transport, including the retry-on-429 policy; executors treat any returned
// error as terminal for the node.
type Provider interface {
	// GenerateImages produces n images for a prompt. When reference images
	// are supplied the image-to-image endpoint is used.
	GenerateImages(ctx context.Context, req ImageRequest) ([]string, error)

	// GenerateVideo produces one video URL for a prompt.
	GenerateVideo(ctx context.Context, req VideoRequest) (string, error)

	// GenerateText produces free-form text for an instruction prompt.
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ImageRequest is one image generation call.
type ImageRequest struct {
	Model           string
	Prompt          string
	NegativePrompt  string
	Size            string
	N               int
	ReferenceImages []string
}

// VideoRequest is one video generation call.
type VideoRequest struct {
	Model    string
	Prompt   string
	ImageURL string
	Duration int
}

// Assets is the storage collaborator for user-owned media.
type Assets interface {
	// CharacterReferenceURLs exchanges a character's stored face-lock assets
	// for short-lived signed URLs the provider can fetch.
	CharacterReferenceURLs(ctx context.Context, userID, characterID string) ([]string, error)

	// SaveToGallery persists a generated asset into the user's library and
	// returns the new asset ID.
	SaveToGallery(ctx context.Context, userID, imageURL, folder string, tags []string) (string, error)
}

// Credits is the external credit-ledger contract.
type Credits interface {
	// Balance reads the user's current credit balance.
	Balance(ctx context.Context, userID string) (int, error)

	// Deduct atomically debits credits from the user's balance.
	Deduct(ctx context.Context, userID string, amount int, description string) error
}
