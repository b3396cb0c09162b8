package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider records requests and plays back canned responses.
type fakeProvider struct {
	imageRequests []ImageRequest
	imageURLs     []string
	imageErr      error

	videoRequests []VideoRequest
	videoURL      string

	textPrompts []string
	text        string
	textErr     error
}

func (f *fakeProvider) GenerateImages(ctx context.Context, req ImageRequest) ([]string, error) {
	f.imageRequests = append(f.imageRequests, req)
	return f.imageURLs, f.imageErr
}

func (f *fakeProvider) GenerateVideo(ctx context.Context, req VideoRequest) (string, error) {
	f.videoRequests = append(f.videoRequests, req)
	return f.videoURL, nil
}

func (f *fakeProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.textPrompts = append(f.textPrompts, prompt)
	return f.text, f.textErr
}

type fakeAssets struct {
	refs      []string
	refsErr   error
	savedURLs []string
	assetID   string
}

func (f *fakeAssets) CharacterReferenceURLs(ctx context.Context, userID, characterID string) ([]string, error) {
	return f.refs, f.refsErr
}

func (f *fakeAssets) SaveToGallery(ctx context.Context, userID, imageURL, folder string, tags []string) (string, error) {
	f.savedURLs = append(f.savedURLs, imageURL)
	return f.assetID, nil
}

type fakeLedger struct {
	deductions []int
	deductErr  error
}

func (f *fakeLedger) Balance(ctx context.Context, userID string) (int, error) {
	return 1000, nil
}

func (f *fakeLedger) Deduct(ctx context.Context, userID string, amount int, description string) error {
	if f.deductErr != nil {
		return f.deductErr
	}
	f.deductions = append(f.deductions, amount)
	return nil
}

func execute(t *testing.T, r *Registry, nodeType string, in Input) (*Result, error) {
	t.Helper()
	def, ok := r.Get(nodeType)
	require.True(t, ok)
	return def.Execute(context.Background(), in)
}

func TestTriggerExecutors(t *testing.T) {
	r := NewRegistry(Deps{})

	for _, nodeType := range []string{TypeManualTrigger, TypeScheduleTrigger} {
		result, err := execute(t, r, nodeType, Input{UserID: "user-1"})
		require.NoError(t, err)
		assert.Equal(t, true, result.Output["trigger"])
		assert.Zero(t, result.CreditsUsed)
	}
}

func TestGeneratePrompts(t *testing.T) {
	t.Run("splits numbered lines and charges one credit", func(t *testing.T) {
		provider := &fakeProvider{text: "1. neon city at dusk\n2. rainy alley\n\n3. rooftop garden"}
		ledger := &fakeLedger{}
		r := NewRegistry(Deps{Provider: provider, Credits: ledger})

		result, err := execute(t, r, TypeGeneratePrompts, Input{
			UserID: "user-1",
			Config: map[string]interface{}{"theme": "cyberpunk", "count": float64(3)},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"neon city at dusk", "rainy alley", "rooftop garden"}, result.Output["prompts"])
		assert.Equal(t, 1, result.CreditsUsed)
		assert.Equal(t, []int{1}, ledger.deductions)
	})

	t.Run("missing theme fails", func(t *testing.T) {
		r := NewRegistry(Deps{Provider: &fakeProvider{text: "x"}, Credits: &fakeLedger{}})
		_, err := execute(t, r, TypeGeneratePrompts, Input{Config: map[string]interface{}{}})
		assert.Error(t, err)
	})

	t.Run("deduction failure keeps output and marks it", func(t *testing.T) {
		provider := &fakeProvider{text: "a prompt"}
		ledger := &fakeLedger{deductErr: errors.New("ledger down")}
		r := NewRegistry(Deps{Provider: provider, Credits: ledger})

		result, err := execute(t, r, TypeGeneratePrompts, Input{
			UserID: "user-1",
			Config: map[string]interface{}{"theme": "cats"},
		})
		require.NoError(t, err)
		assert.Equal(t, true, result.Output["deduction_failed"])
		assert.Equal(t, 1, result.CreditsUsed)
	})
}

func TestGenerateImage(t *testing.T) {
	t.Run("cost scales with outputs", func(t *testing.T) {
		provider := &fakeProvider{imageURLs: []string{"u1", "u2", "u3"}}
		ledger := &fakeLedger{}
		r := NewRegistry(Deps{Provider: provider, Credits: ledger})

		result, err := execute(t, r, TypeGenerateImage, Input{
			UserID: "user-1",
			Config: map[string]interface{}{"prompt": "a fox", "num_outputs": float64(3)},
		})
		require.NoError(t, err)
		assert.Equal(t, 15, result.CreditsUsed)
		assert.Equal(t, "u1", result.Output["image_url"])
		assert.Equal(t, []int{15}, ledger.deductions)

		require.Len(t, provider.imageRequests, 1)
		assert.Equal(t, 3, provider.imageRequests[0].N)
		assert.Empty(t, provider.imageRequests[0].ReferenceImages)
	})

	t.Run("input port prompt wins over config", func(t *testing.T) {
		provider := &fakeProvider{imageURLs: []string{"u1"}}
		r := NewRegistry(Deps{Provider: provider, Credits: &fakeLedger{}})

		_, err := execute(t, r, TypeGenerateImage, Input{
			UserID:   "user-1",
			Config:   map[string]interface{}{"prompt": "config prompt"},
			Upstream: map[string]interface{}{"prompt": "port prompt"},
		})
		require.NoError(t, err)
		assert.Equal(t, "port prompt", provider.imageRequests[0].Prompt)
	})

	t.Run("prompts list feeds the first entry", func(t *testing.T) {
		provider := &fakeProvider{imageURLs: []string{"u1"}}
		r := NewRegistry(Deps{Provider: provider, Credits: &fakeLedger{}})

		_, err := execute(t, r, TypeGenerateImage, Input{
			UserID:   "user-1",
			Upstream: map[string]interface{}{"prompts": []interface{}{"first", "second"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "first", provider.imageRequests[0].Prompt)
	})

	t.Run("no prompt anywhere fails", func(t *testing.T) {
		r := NewRegistry(Deps{Provider: &fakeProvider{imageURLs: []string{"u1"}}, Credits: &fakeLedger{}})
		_, err := execute(t, r, TypeGenerateImage, Input{UserID: "user-1"})
		assert.Error(t, err)
	})

	t.Run("face lock passes reference images", func(t *testing.T) {
		provider := &fakeProvider{imageURLs: []string{"u1"}}
		assets := &fakeAssets{refs: []string{"ref1", "ref2"}}
		r := NewRegistry(Deps{Provider: provider, Assets: assets, Credits: &fakeLedger{}})

		_, err := execute(t, r, TypeGenerateImage, Input{
			UserID: "user-1",
			Config: map[string]interface{}{
				"prompt":    "a portrait",
				"face_lock": true,
				"character": "char-9",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"ref1", "ref2"}, provider.imageRequests[0].ReferenceImages)
	})

	t.Run("face lock without character fails", func(t *testing.T) {
		r := NewRegistry(Deps{Provider: &fakeProvider{imageURLs: []string{"u1"}}, Assets: &fakeAssets{}, Credits: &fakeLedger{}})
		_, err := execute(t, r, TypeGenerateImage, Input{
			UserID: "user-1",
			Config: map[string]interface{}{"prompt": "a portrait", "face_lock": true},
		})
		assert.Error(t, err)
	})

	t.Run("provider failure is terminal and charges nothing", func(t *testing.T) {
		ledger := &fakeLedger{}
		r := NewRegistry(Deps{Provider: &fakeProvider{imageErr: errors.New("upstream 500")}, Credits: ledger})

		_, err := execute(t, r, TypeGenerateImage, Input{
			UserID: "user-1",
			Config: map[string]interface{}{"prompt": "a fox"},
		})
		assert.Error(t, err)
		assert.Empty(t, ledger.deductions)
	})
}

func TestGenerateVideo(t *testing.T) {
	provider := &fakeProvider{videoURL: "https://cdn.example/v.mp4"}
	ledger := &fakeLedger{}
	r := NewRegistry(Deps{Provider: provider, Credits: ledger})

	result, err := execute(t, r, TypeGenerateVideo, Input{
		UserID: "user-1",
		Config: map[string]interface{}{"prompt": "waves at sunset"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/v.mp4", result.Output["video_url"])
	assert.Equal(t, CreditsPerVideo, result.CreditsUsed)
	assert.Equal(t, []int{CreditsPerVideo}, ledger.deductions)
}

func TestGenerateCaption(t *testing.T) {
	provider := &fakeProvider{text: "Golden hour vibes ✨ #sunset"}
	ledger := &fakeLedger{}
	r := NewRegistry(Deps{Provider: provider, Credits: ledger})

	result, err := execute(t, r, TypeGenerateCaption, Input{
		UserID:   "user-1",
		Upstream: map[string]interface{}{"prompt": "sunset over the sea"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Golden hour vibes ✨ #sunset", result.Output["caption"])
	assert.Equal(t, CreditsPerCaption, result.CreditsUsed)
}

func TestSaveGallery(t *testing.T) {
	t.Run("saves and reports asset id", func(t *testing.T) {
		assets := &fakeAssets{assetID: "asset-7"}
		r := NewRegistry(Deps{Assets: assets, Credits: &fakeLedger{}})

		result, err := execute(t, r, TypeSaveGallery, Input{
			UserID:   "user-1",
			Config:   map[string]interface{}{"folder": "summer", "tags": "beach, sunset"},
			Upstream: map[string]interface{}{"image_url": "https://cdn.example/img.png"},
		})
		require.NoError(t, err)
		assert.Equal(t, "asset-7", result.Output["asset_id"])
		assert.Zero(t, result.CreditsUsed)
		assert.Equal(t, []string{"https://cdn.example/img.png"}, assets.savedURLs)
	})

	t.Run("missing image_url fails", func(t *testing.T) {
		r := NewRegistry(Deps{Assets: &fakeAssets{}, Credits: &fakeLedger{}})
		_, err := execute(t, r, TypeSaveGallery, Input{UserID: "user-1"})
		assert.Error(t, err)
	})
}
