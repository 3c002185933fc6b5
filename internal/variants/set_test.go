package variants

import (
	"errors"
	"testing"

	"whisper-desk/internal/domain"
)

func job(id, model string) domain.Transcription {
	return domain.Transcription{
		ID:          id,
		AudioFileID: "audio-1",
		Model:       model,
		Status:      domain.StatusCompleted,
	}
}

// TestUpsertIsIdempotentPerModel verifies one entry survives repeated upserts.
func TestUpsertIsIdempotentPerModel(t *testing.T) {
	s := NewSet("audio-1")
	for i := 0; i < 3; i++ {
		if err := s.Upsert(job("job-1", "base")); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

// TestUpsertReplacesSameModelWithoutDuplicate checks key-based replacement.
func TestUpsertReplacesSameModelWithoutDuplicate(t *testing.T) {
	s := NewSet("audio-1")
	if err := s.Upsert(job("job-1", "base")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(job("job-2", "base")); err != nil {
		t.Fatalf("upsert replacement: %v", err)
	}

	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	active, ok := s.Active()
	if !ok || active.ID != "job-2" {
		t.Fatalf("active = %+v, want job-2 after replacing the active entry", active)
	}
}

// TestUpsertRejectsWrongAudioFile checks the key invariant.
func TestUpsertRejectsWrongAudioFile(t *testing.T) {
	s := NewSet("audio-1")
	other := job("job-9", "base")
	other.AudioFileID = "audio-2"
	if err := s.Upsert(other); !errors.Is(err, ErrWrongAudioFile) {
		t.Fatalf("err = %v, want %v", err, ErrWrongAudioFile)
	}
}

// TestOrderedSortsByTierRank verifies tier order regardless of insertion.
func TestOrderedSortsByTierRank(t *testing.T) {
	s := NewSet("audio-1")
	for _, model := range []string{"large", "tiny", "base"} {
		if err := s.Upsert(job("job-"+model, model)); err != nil {
			t.Fatalf("upsert %s: %v", model, err)
		}
	}

	ordered := s.Ordered()
	want := []string{"tiny", "base", "large"}
	if len(ordered) != len(want) {
		t.Fatalf("len = %d, want %d", len(ordered), len(want))
	}
	for i, model := range want {
		if ordered[i].Model != model {
			t.Fatalf("ordered[%d].Model = %s, want %s", i, ordered[i].Model, model)
		}
	}
}

// TestOrderedPlacesUnknownModelsLast checks deterministic unknown sorting.
func TestOrderedPlacesUnknownModelsLast(t *testing.T) {
	s := NewSet("audio-1")
	for _, model := range []string{"mystery", "base"} {
		if err := s.Upsert(job("job-"+model, model)); err != nil {
			t.Fatalf("upsert %s: %v", model, err)
		}
	}

	ordered := s.Ordered()
	if ordered[0].Model != "base" || ordered[1].Model != "mystery" {
		t.Fatalf("unexpected order: %s, %s", ordered[0].Model, ordered[1].Model)
	}
}

// TestActivateRejectsNonMember verifies the pointer survives bad activations.
func TestActivateRejectsNonMember(t *testing.T) {
	s := NewSet("audio-1")
	if err := s.Upsert(job("job-1", "base")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.Activate("job-unknown"); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("err = %v, want %v", err, ErrUnknownVariant)
	}
	active, ok := s.Active()
	if !ok || active.ID != "job-1" {
		t.Fatalf("active = %+v, want job-1 unchanged", active)
	}
}

// TestReconcilePrefersSwitchTo checks the reconciliation precedence order.
func TestReconcilePrefersSwitchTo(t *testing.T) {
	s := NewSet("audio-1")
	if err := s.Upsert(job("job-base", "base")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	s.Reconcile([]domain.Transcription{job("job-base", "base"), job("job-small", "small")}, "job-small")
	active, ok := s.Active()
	if !ok || active.ID != "job-small" {
		t.Fatalf("active = %+v, want job-small", active)
	}
}

// TestReconcilePreservesPreviousActive checks fallback to the prior pointer.
func TestReconcilePreservesPreviousActive(t *testing.T) {
	s := NewSet("audio-1")
	if err := s.Upsert(job("job-base", "base")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(job("job-small", "small")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Activate("job-small"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	// switchTo names an id that does not survive reconciliation.
	s.Reconcile([]domain.Transcription{job("job-base", "base"), job("job-small", "small")}, "job-gone")
	active, ok := s.Active()
	if !ok || active.ID != "job-small" {
		t.Fatalf("active = %+v, want previous job-small", active)
	}
}

// TestReconcileFallsBackToFirstByTier checks the final precedence rule.
func TestReconcileFallsBackToFirstByTier(t *testing.T) {
	s := NewSet("audio-1")
	if err := s.Upsert(job("job-old", "base")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	s.Reconcile([]domain.Transcription{job("job-large", "large"), job("job-tiny", "tiny")}, "")
	active, ok := s.Active()
	if !ok || active.ID != "job-tiny" {
		t.Fatalf("active = %+v, want first by tier order (job-tiny)", active)
	}
}

// TestReconcileDropsDuplicateModels verifies at most one entry per model.
func TestReconcileDropsDuplicateModels(t *testing.T) {
	s := NewSet("audio-1")
	s.Reconcile([]domain.Transcription{job("job-1", "base"), job("job-2", "base")}, "")
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}
