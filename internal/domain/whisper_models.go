package domain

// WhisperModelOption describes one server-side Whisper model tier.
type WhisperModelOption struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Parameters  string `json:"parameters"`
	SizeLabel   string `json:"sizeLabel,omitempty"`
	Description string `json:"description,omitempty"`
	Cached      bool   `json:"cached"`
	Loaded      bool   `json:"loaded"`
}

// modelTierRank fixes the display order of model tiers by size/speed tradeoff.
var modelTierRank = map[string]int{
	"tiny":   0,
	"base":   1,
	"small":  2,
	"medium": 3,
	"large":  4,
	"turbo":  5,
}

// unknownTierRank sorts model names outside the fixed tier set last.
var unknownTierRank = len(modelTierRank)

// TierRank returns the fixed ordering rank for a model name.
// Unknown names all share the last rank.
func TierRank(model string) int {
	if rank, ok := modelTierRank[model]; ok {
		return rank
	}
	return unknownTierRank
}

// KnownModel reports whether the name is one of the fixed model tiers.
func KnownModel(model string) bool {
	_, ok := modelTierRank[model]
	return ok
}
