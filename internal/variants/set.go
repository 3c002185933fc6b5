package variants

import (
	"errors"
	"sort"

	"github.com/samber/lo"

	"whisper-desk/internal/domain"
)

// ErrUnknownVariant is returned when activating an id not in the set.
var ErrUnknownVariant = errors.New("variant is not a member of the set")

// ErrWrongAudioFile is returned when upserting a transcription that belongs
// to a different audio file.
var ErrWrongAudioFile = errors.New("transcription belongs to a different audio file")

// Set holds every transcription variant of one audio file, at most one per
// model, and tracks which variant is active. It is not synchronized: a single
// owner (the screen coordinator) performs all reads and writes.
type Set struct {
	audioFileID string
	items       []domain.Transcription
	activeID    string
}

// NewSet creates an empty variant set for one audio file.
func NewSet(audioFileID string) *Set {
	return &Set{audioFileID: audioFileID}
}

// AudioFileID returns the audio file this set belongs to.
func (s *Set) AudioFileID() string {
	return s.audioFileID
}

// Len returns the number of variants in the set.
func (s *Set) Len() int {
	return len(s.items)
}

// Has reports whether the set already holds a variant for the model.
func (s *Set) Has(model string) bool {
	return lo.ContainsBy(s.items, func(t domain.Transcription) bool {
		return t.Model == model
	})
}

// Get returns the variant with the given id.
func (s *Set) Get(id string) (domain.Transcription, bool) {
	return lo.Find(s.items, func(t domain.Transcription) bool {
		return t.ID == id
	})
}

// Upsert inserts a variant keyed by (audioFileID, model). An existing entry
// with the same model is replaced in place, never duplicated. When the
// replaced entry was active, the active pointer follows the replacement; the
// first insert into an empty set becomes active.
func (s *Set) Upsert(t domain.Transcription) error {
	if t.AudioFileID != s.audioFileID {
		return ErrWrongAudioFile
	}

	_, idx, found := lo.FindIndexOf(s.items, func(existing domain.Transcription) bool {
		return existing.Model == t.Model
	})
	if found {
		if s.activeID == s.items[idx].ID {
			s.activeID = t.ID
		}
		s.items[idx] = t
		return nil
	}

	s.items = append(s.items, t)
	if s.activeID == "" {
		s.activeID = t.ID
	}
	return nil
}

// Activate points the active reference at the variant with the given id.
// Unknown ids are rejected and leave the previous pointer unchanged.
func (s *Set) Activate(id string) error {
	if _, ok := s.Get(id); !ok {
		return ErrUnknownVariant
	}
	s.activeID = id
	return nil
}

// Active returns the currently active variant.
func (s *Set) Active() (domain.Transcription, bool) {
	if s.activeID == "" {
		return domain.Transcription{}, false
	}
	return s.Get(s.activeID)
}

// Ordered returns all variants sorted by fixed tier rank, ties broken by
// insertion order. Unknown model names sort last.
func (s *Set) Ordered() []domain.Transcription {
	out := make([]domain.Transcription, len(s.items))
	copy(out, s.items)
	sort.SliceStable(out, func(i, j int) bool {
		return domain.TierRank(out[i].Model) < domain.TierRank(out[j].Model)
	})
	return out
}

// Reconcile replaces the set's contents with a server-loaded snapshot. The
// active pointer moves to switchTo when that id survives reconciliation;
// otherwise the previously active id is preserved when still present, and
// otherwise the first variant by tier order becomes active.
func (s *Set) Reconcile(items []domain.Transcription, switchTo string) {
	previousActive := s.activeID

	s.items = s.items[:0]
	seenModels := map[string]struct{}{}
	for _, t := range items {
		if t.AudioFileID != s.audioFileID {
			continue
		}
		if _, dup := seenModels[t.Model]; dup {
			continue
		}
		seenModels[t.Model] = struct{}{}
		s.items = append(s.items, t)
	}

	s.activeID = ""
	if switchTo != "" {
		if _, ok := s.Get(switchTo); ok {
			s.activeID = switchTo
			return
		}
	}
	if previousActive != "" {
		if _, ok := s.Get(previousActive); ok {
			s.activeID = previousActive
			return
		}
	}
	if ordered := s.Ordered(); len(ordered) > 0 {
		s.activeID = ordered[0].ID
	}
}
