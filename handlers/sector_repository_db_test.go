package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"p9e.in/recup/models"
)

func seedEntryView(tag string) *models.SectorView {
	svcID := "solda"
	entry := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return &models.SectorView{
		TagNumber:    tag,
		TagPhotoURL:  "http://x/" + tag + "-tag.jpg",
		Status:       models.StatusPeritagemPendente,
		Outcome:      models.OutcomeEmAndamento,
		CycleCount:   1,
		EntryInvoice: "NF-1",
		EntryDate:    &entry,
		Services: []models.ServiceView{
			{ID: svcID, Selected: true, Quantity: 2},
		},
		BeforePhotos: []models.PhotoView{
			{URL: "http://x/" + tag + "-b.jpg", Type: models.PhotoTypeBefore, ServiceID: &svcID},
		},
	}
}

func TestSectorRepositoryAdd(t *testing.T) {
	db := requireDB(t)
	repo := NewSectorRepository(db)

	view, warnings, err := repo.Add(seedEntryView("TAG-ADD-1"), "user-1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, expected none", warnings)
	}
	if view == nil || view.EntryInvoice != "NF-1" {
		t.Fatalf("view = %+v, cycle data must be reachable right after creation", view)
	}

	// Exactly one cycle row, and it is the one the limit-1 lookup finds.
	var cycles int64
	db.Model(&models.Cycle{}).Where("sector_id = ?", view.ID).Count(&cycles)
	if cycles != 1 {
		t.Errorf("cycle rows = %d, expected exactly one", cycles)
	}

	got, err := repo.GetByID(view.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID() = %v, %v", got, err)
	}
	if got.EntryInvoice != "NF-1" || got.CycleCount != 1 {
		t.Errorf("reloaded view = %q/%d, expected NF-1/1", got.EntryInvoice, got.CycleCount)
	}
	if len(got.Services) != 1 || got.Services[0].ID != "solda" || got.Services[0].Quantity != 2 {
		t.Errorf("services = %+v, expected the selected solda row", got.Services)
	}
	if len(got.BeforePhotos) != 1 {
		t.Errorf("beforePhotos = %d, expected 1", len(got.BeforePhotos))
	}
	if got.TagPhotoURL == "" {
		t.Error("tag photo must survive the round trip")
	}
}

func TestSectorRepositoryAdd_CompensatesWhenCycleInsertFails(t *testing.T) {
	db := requireDB(t)
	if err := db.Exec("ALTER TABLE cycles ADD CONSTRAINT cycles_tag_guard CHECK (tag_number <> 'TAG-FALHA')").Error; err != nil {
		t.Fatalf("constraint setup: %v", err)
	}
	defer db.Exec("ALTER TABLE cycles DROP CONSTRAINT cycles_tag_guard")

	repo := NewSectorRepository(db)
	_, _, err := repo.Add(seedEntryView("TAG-FALHA"), "user-1")
	if err == nil {
		t.Fatal("expected the cycle insert to fail")
	}

	var sectors int64
	db.Model(&models.Sector{}).Where("tag_number = ?", "TAG-FALHA").Count(&sectors)
	if sectors != 0 {
		t.Errorf("sector rows = %d, expected the compensating delete to leave none", sectors)
	}
}

func TestSectorRepositoryAdd_CycleCountCollision(t *testing.T) {
	db := requireDB(t)
	repo := NewSectorRepository(db)

	if _, _, err := repo.Add(seedEntryView("TAG-COL"), "user-1"); err != nil {
		t.Fatalf("first Add() error = %v", err)
	}
	_, _, err := repo.Add(seedEntryView("TAG-COL"), "user-2")
	if err == nil {
		t.Fatal("expected a unique violation on the same (tag, cycle count) pair")
	}
	if !IsCycleCountConflict(err) {
		t.Errorf("err = %v, expected a retryable cycle-count conflict", err)
	}
}

func TestSectorRepositoryUpdate_PhotoAppendIdempotent(t *testing.T) {
	db := requireDB(t)
	repo := NewSectorRepository(db)

	view, _, err := repo.Add(seedEntryView("TAG-UPD"), "user-1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	photoCount := func() int64 {
		var n int64
		db.Model(&models.SectorPhoto{}).Where("sector_id = ?", view.ID).Count(&n)
		return n
	}

	upd := *view
	upd.AfterPhotos = []models.PhotoView{{URL: "http://x/TAG-UPD-a.jpg", Type: models.PhotoTypeAfter}}

	if _, _, err := repo.Update(view.ID, &upd); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	first := photoCount()
	if first != 3 {
		t.Fatalf("photos = %d after update, expected before+tag+after", first)
	}

	// The same payload again must not duplicate anything.
	if _, _, err := repo.Update(view.ID, &upd); err != nil {
		t.Fatalf("repeated Update() error = %v", err)
	}
	if again := photoCount(); again != first {
		t.Errorf("photos = %d after repeated update, expected unchanged %d", again, first)
	}
}

func TestSectorRepositoryUpdate_PreservesCompletedFlag(t *testing.T) {
	db := requireDB(t)
	repo := NewSectorRepository(db)

	view, _, err := repo.Add(seedEntryView("TAG-DONE"), "user-1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	marked := *view
	marked.Services = []models.ServiceView{{ID: "solda", Selected: true, Quantity: 2, Completed: true}}
	if _, _, err := repo.Update(view.ID, &marked); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// A later edit that does not resupply the flag must not clear it.
	echo := *view
	echo.Services = []models.ServiceView{{ID: "solda", Selected: true, Quantity: 2}}
	got, _, err := repo.Update(view.ID, &echo)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(got.Services) != 1 || !got.Services[0].Completed {
		t.Errorf("services = %+v, completed flag must survive edits that omit it", got.Services)
	}
}

func TestRecordPhotoMetadataDerivesStage(t *testing.T) {
	db := requireDB(t)
	repo := NewSectorRepository(db)

	view, _, err := repo.Add(seedEntryView("TAG-META"), "user-1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	var cycle models.Cycle
	if err := db.Where("sector_id = ?", view.ID).First(&cycle).Error; err != nil {
		t.Fatalf("cycle lookup: %v", err)
	}

	row := models.SectorPhoto{
		SectorID: view.ID,
		CycleID:  &cycle.ID,
		URL:      "http://x/TAG-META-after.jpg",
		Type:     models.PhotoTypeAfter,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("photo insert: %v", err)
	}

	if warnings := repo.RecordPhotoMetadata(view.ID); len(warnings) != 0 {
		t.Fatalf("warnings = %v, expected none", warnings)
	}

	var reloaded models.SectorPhoto
	if err := db.First(&reloaded, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("photo reload: %v", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(reloaded.Metadata, &meta); err != nil {
		t.Fatalf("metadata unmarshal: %v", err)
	}
	if meta["stage"] != "checagem" {
		t.Errorf("stage = %v, expected checagem for an after photo", meta["stage"])
	}
	if meta["type"] != "after" {
		t.Errorf("type = %v, expected after", meta["type"])
	}
}
