package bootstrap

import (
	"context"
	"sort"

	"whisper-desk/internal/api"
	"whisper-desk/internal/domain"
)

// whisperModelCatalog is the built-in tier list, used when the server's
// catalog endpoint is unavailable.
var whisperModelCatalog = []domain.WhisperModelOption{
	{
		Code:        "tiny",
		Name:        "Tiny",
		Parameters:  "39M",
		SizeLabel:   "~75MB",
		Description: "Fastest model with acceptable accuracy, ideal for quick drafts.",
	},
	{
		Code:        "base",
		Name:        "Base",
		Parameters:  "74M",
		SizeLabel:   "~150MB",
		Description: "Recommended default, balanced speed and accuracy.",
	},
	{
		Code:        "small",
		Name:        "Small",
		Parameters:  "244M",
		SizeLabel:   "~500MB",
		Description: "Better accuracy than base without large resource needs.",
	},
	{
		Code:        "medium",
		Name:        "Medium",
		Parameters:  "769M",
		SizeLabel:   "~1.5GB",
		Description: "High accuracy for important transcriptions.",
	},
	{
		Code:        "large",
		Name:        "Large",
		Parameters:  "1550M",
		SizeLabel:   "~3.0GB",
		Description: "Best accuracy available.",
	},
	{
		Code:        "turbo",
		Name:        "Turbo",
		Parameters:  "809M",
		SizeLabel:   "~1.6GB",
		Description: "Near-large accuracy at much higher speed.",
	},
}

// GetWhisperModels returns the model catalog, preferring the server's list
// and annotating each entry with its cache/load status.
func (a *App) GetWhisperModels() []domain.WhisperModelOption {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()

	models, err := client.AvailableModels(context.Background())
	if err != nil || len(models) == 0 {
		models = make([]domain.WhisperModelOption, len(whisperModelCatalog))
		copy(models, whisperModelCatalog)
	}

	for i := range models {
		status, err := client.ModelStatus(context.Background(), models[i].Code)
		if err != nil {
			continue
		}
		models[i].Cached = status.IsCached
		models[i].Loaded = status.IsLoaded
	}

	sort.SliceStable(models, func(i, j int) bool {
		return domain.TierRank(models[i].Code) < domain.TierRank(models[j].Code)
	})
	return models
}

// GetModelStatus exposes the one-shot per-model status check to the UI.
func (a *App) GetModelStatus(model string) (api.ModelStatus, error) {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	return client.ModelStatus(context.Background(), model)
}
