package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"p9e.in/recup/models"
)

// ErrCycleNotFound is fatal: every write against an existing sector requires
// its active cycle row.
var ErrCycleNotFound = errors.New("ciclo não encontrado")

// SectorRepository owns all reads and the multi-table write sequencing for
// sectors, cycles, service selections and photos.
type SectorRepository struct {
	db *gorm.DB
}

func NewSectorRepository(db *gorm.DB) *SectorRepository {
	return &SectorRepository{db: db}
}

// IsCycleCountConflict reports whether err is the unique violation raised when
// two intakes race on the same (tag, cycle count) pair. Callers treat it as a
// retryable event and draw a new candidate.
func IsCycleCountConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isPermissionDenied(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42501"
	}
	return strings.Contains(err.Error(), "permission denied")
}

// latestCycle returns the active cycle: most recent by creation time, limit 1.
func (r *SectorRepository) latestCycle(sectorID uuid.UUID) (*models.Cycle, error) {
	var cycle models.Cycle
	err := r.db.Where("sector_id = ?", sectorID).
		Order("created_at DESC").
		Limit(1).
		First(&cycle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cycle, nil
}

func (r *SectorRepository) serviceTypes() (map[string]models.ServiceType, error) {
	var types []models.ServiceType
	if err := r.db.Find(&types).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.ServiceType, len(types))
	for _, t := range types {
		out[t.ID] = t
	}
	return out, nil
}

// expand assembles the nested view for one sector row. A sector with no cycle
// row (crash between the two creation inserts) is still surfaced as a minimal
// view while its status says it should be visible in a queue; otherwise it is
// skipped and the caller gets nil.
func (r *SectorRepository) expand(sector models.Sector) (*models.SectorView, error) {
	cycle, err := r.latestCycle(sector.ID)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar ciclo do setor %s: %w", sector.ID, err)
	}
	if cycle == nil {
		if sector.CurrentStatus == models.StatusPeritagemPendente || sector.CurrentStatus == models.StatusEmExecucao {
			return BuildSectorView(sector, nil, nil, nil, nil, nil), nil
		}
		return nil, nil
	}

	var services []models.CycleService
	if err := r.db.Where("cycle_id = ?", cycle.ID).Order("service_type_id").Find(&services).Error; err != nil {
		return nil, fmt.Errorf("falha ao buscar serviços do ciclo %s: %w", cycle.ID, err)
	}

	types, err := r.serviceTypes()
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar tipos de serviço: %w", err)
	}

	var photos []models.SectorPhoto
	if err := r.db.Where("sector_id = ? AND (cycle_id = ? OR cycle_id IS NULL)", sector.ID, cycle.ID).
		Order("created_at").Find(&photos).Error; err != nil {
		return nil, fmt.Errorf("falha ao buscar fotos do setor %s: %w", sector.ID, err)
	}

	// History for the tag across all sector rows, newest first, active cycle
	// excluded.
	var previous []models.Cycle
	if err := r.db.Where("tag_number = ? AND id <> ?", sector.TagNumber, cycle.ID).
		Order("created_at DESC").Find(&previous).Error; err != nil {
		return nil, fmt.Errorf("falha ao buscar histórico da TAG %s: %w", sector.TagNumber, err)
	}

	return BuildSectorView(sector, cycle, services, types, photos, previous), nil
}

// GetAll returns every sector with its active cycle expanded.
func (r *SectorRepository) GetAll() ([]models.SectorView, error) {
	var sectors []models.Sector
	if err := r.db.Order("updated_at DESC").Find(&sectors).Error; err != nil {
		return nil, fmt.Errorf("falha ao listar setores: %w", err)
	}

	views := make([]models.SectorView, 0, len(sectors))
	for _, sector := range sectors {
		view, err := r.expand(sector)
		if err != nil {
			log.Printf("⚠️  Setor %s ignorado na listagem: %v", sector.ID, err)
			continue
		}
		if view != nil {
			views = append(views, *view)
		}
	}
	return views, nil
}

// GetByID returns the expanded sector or nil when it does not exist. A
// row-level permission denial is logged and treated as not-found so list
// views stay resilient.
func (r *SectorRepository) GetByID(id uuid.UUID) (*models.SectorView, error) {
	var sector models.Sector
	if err := r.db.First(&sector, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if isPermissionDenied(err) {
			log.Printf("⚠️  Acesso negado ao setor %s: %v", id, err)
			return nil, nil
		}
		return nil, fmt.Errorf("falha ao buscar setor %s: %w", id, err)
	}
	return r.expand(sector)
}

// GetByTag returns the expansion of every sector whose tag matches the given
// fragment, case-insensitively. Used to assemble cross-cycle history when a
// physical unit re-enters recovery.
func (r *SectorRepository) GetByTag(tagNumber string) ([]models.SectorView, error) {
	var sectors []models.Sector
	if err := r.db.Where("tag_number ILIKE ?", "%"+tagNumber+"%").
		Order("cycle_count DESC").Find(&sectors).Error; err != nil {
		return nil, fmt.Errorf("falha ao buscar setores pela TAG %s: %w", tagNumber, err)
	}

	views := make([]models.SectorView, 0, len(sectors))
	for _, sector := range sectors {
		view, err := r.expand(sector)
		if err != nil {
			log.Printf("⚠️  Setor %s ignorado na busca por TAG: %v", sector.ID, err)
			continue
		}
		if view != nil {
			views = append(views, *view)
		}
	}
	return views, nil
}

// stageForPhotoType maps a photo classification to the workflow stage it was
// taken in.
func stageForPhotoType(t models.PhotoType) string {
	switch t {
	case models.PhotoTypeAfter:
		return "checagem"
	case models.PhotoTypeScrap:
		return "sucateamento"
	default:
		return "peritagem"
	}
}

func photoMetadata(sectorID uuid.UUID, stage string, photoType models.PhotoType, serviceID *string) datatypes.JSON {
	meta := map[string]interface{}{
		"sector_id": sectorID.String(),
		"stage":     stage,
		"type":      string(photoType),
	}
	if serviceID != nil {
		meta["service_id"] = *serviceID
	}
	raw, _ := json.Marshal(meta)
	return datatypes.JSON(raw)
}

// Add creates the sector, its first cycle, the service selections and the
// peritagem photos, in that order. The sector/cycle pair is the primary path:
// a cycle failure compensates by deleting the just-created sector so no
// orphan survives. Service rows and photo rows are individually repairable
// through a later update, so their failures are collected as warnings instead
// of aborting.
func (r *SectorRepository) Add(data *models.SectorView, userID string) (*models.SectorView, []string, error) {
	var warnings []string
	now := time.Now()

	sector := models.Sector{
		TagNumber:      data.TagNumber,
		TagPhotoURL:    data.TagPhotoURL,
		CurrentStatus:  data.Status,
		CurrentOutcome: data.Outcome,
		CycleCount:     data.CycleCount,
	}
	if sector.CurrentStatus == "" {
		sector.CurrentStatus = models.StatusPeritagemPendente
	}
	if sector.CurrentOutcome == "" {
		sector.CurrentOutcome = models.OutcomeEmAndamento
	}
	if sector.CycleCount <= 0 {
		sector.CycleCount = 1
	}
	if err := r.db.Create(&sector).Error; err != nil {
		return nil, nil, fmt.Errorf("falha ao criar setor: %w", err)
	}

	cycle := models.Cycle{
		SectorID:           sector.ID,
		TagNumber:          sector.TagNumber,
		Status:             sector.CurrentStatus,
		Outcome:            sector.CurrentOutcome,
		EntryInvoice:       data.EntryInvoice,
		EntryDate:          data.EntryDate,
		EntryObservations:  data.EntryObservations,
		PeritagemDate:      data.PeritagemDate,
		ScrapObservations:  data.ScrapObservations,
		ScrapReturnInvoice: data.ScrapReturnInvoice,
		ScrapReturnDate:    data.ScrapReturnDate,
		ScrapValidated:     data.ScrapValidated,
		CreatedAt:          now,
	}
	if err := r.db.Create(&cycle).Error; err != nil {
		// Compensate so no orphan sector row survives a partial creation.
		if delErr := r.db.Delete(&models.Sector{}, "id = ?", sector.ID).Error; delErr != nil {
			log.Printf("⚠️  Falha ao compensar setor %s após erro no ciclo: %v", sector.ID, delErr)
		}
		return nil, nil, fmt.Errorf("falha ao criar ciclo: %w", err)
	}

	for _, svc := range data.SelectedServices() {
		cs := models.CycleService{
			CycleID:       cycle.ID,
			SectorID:      sector.ID,
			ServiceTypeID: svc.ID,
			Selected:      true,
			Quantity:      svc.Quantity,
			Observations:  svc.Observations,
			Stage:         "peritagem",
		}
		if err := r.db.Create(&cs).Error; err != nil {
			msg := fmt.Sprintf("serviço %s não gravado no ciclo: %v", svc.ID, err)
			log.Printf("⚠️  %s", msg)
			warnings = append(warnings, msg)
		}
		ss := models.SectorService{
			SectorID:      sector.ID,
			ServiceTypeID: svc.ID,
			Selected:      true,
			Quantity:      svc.Quantity,
			Stage:         "peritagem",
		}
		if err := r.db.Create(&ss).Error; err != nil {
			msg := fmt.Sprintf("serviço %s não gravado no setor: %v", svc.ID, err)
			log.Printf("⚠️  %s", msg)
			warnings = append(warnings, msg)
		}
	}

	photoRows := make([]models.SectorPhoto, 0, len(data.BeforePhotos)+len(data.ScrapPhotos)+1)
	for _, p := range data.BeforePhotos {
		photoRows = append(photoRows, models.SectorPhoto{
			SectorID:  sector.ID,
			CycleID:   &cycle.ID,
			ServiceID: p.ServiceID,
			URL:       p.URL,
			Type:      models.PhotoTypeBefore,
			Metadata:  photoMetadata(sector.ID, "peritagem", models.PhotoTypeBefore, p.ServiceID),
		})
	}
	for _, p := range data.ScrapPhotos {
		photoRows = append(photoRows, models.SectorPhoto{
			SectorID: sector.ID,
			CycleID:  &cycle.ID,
			URL:      p.URL,
			Type:     models.PhotoTypeScrap,
			Metadata: photoMetadata(sector.ID, "peritagem", models.PhotoTypeScrap, nil),
		})
	}
	if data.TagPhotoURL != "" {
		photoRows = append(photoRows, models.SectorPhoto{
			SectorID: sector.ID,
			CycleID:  &cycle.ID,
			URL:      data.TagPhotoURL,
			Type:     models.PhotoTypeTag,
			Metadata: photoMetadata(sector.ID, "peritagem", models.PhotoTypeTag, nil),
		})
	}
	for i := range photoRows {
		if err := r.db.Create(&photoRows[i]).Error; err != nil {
			msg := fmt.Sprintf("foto %s não gravada: %v", photoRows[i].URL, err)
			log.Printf("⚠️  %s", msg)
			warnings = append(warnings, msg)
		}
	}

	log.Printf("✅ Setor criado: %s (TAG %s, ciclo %d)", sector.ID, sector.TagNumber, sector.CycleCount)

	view, err := r.expand(sector)
	if err != nil {
		return nil, warnings, err
	}
	return view, warnings, nil
}

// Update edits the sector row and its active cycle, reconciles the service
// selections and appends only photos not yet present for the cycle.
//
// Service reconciliation is a diff-based upsert: rows for still-selected
// services are updated in place so server-side flags (completed, set during
// checagem) survive edits that do not resupply them; deselected rows are
// removed; new selections are inserted.
func (r *SectorRepository) Update(id uuid.UUID, data *models.SectorView) (*models.SectorView, []string, error) {
	var warnings []string

	var sector models.Sector
	if err := r.db.First(&sector, "id = ?", id).Error; err != nil {
		return nil, nil, fmt.Errorf("setor %s não encontrado: %w", id, err)
	}
	cycle, err := r.latestCycle(sector.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("falha ao buscar ciclo do setor %s: %w", id, err)
	}
	if cycle == nil {
		return nil, nil, ErrCycleNotFound
	}

	sectorUpdates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if data.TagNumber != "" {
		sectorUpdates["tag_number"] = data.TagNumber
	}
	if data.TagPhotoURL != "" {
		sectorUpdates["tag_photo_url"] = data.TagPhotoURL
	}
	if data.Status != "" {
		sectorUpdates["current_status"] = data.Status
		sectorUpdates["current_outcome"] = models.OutcomeForStatus(data.Status)
	}
	if err := r.db.Model(&sector).Updates(sectorUpdates).Error; err != nil {
		return nil, nil, fmt.Errorf("falha ao atualizar setor %s: %w", id, err)
	}

	cycleUpdates := map[string]interface{}{
		"entry_invoice":        data.EntryInvoice,
		"entry_date":           data.EntryDate,
		"entry_observations":   data.EntryObservations,
		"peritagem_date":       data.PeritagemDate,
		"production_completed": data.ProductionCompleted,
		"exit_invoice":         data.ExitInvoice,
		"exit_date":            data.ExitDate,
		"exit_observations":    data.ExitObservations,
		"checagem_date":        data.ChecagemDate,
		"scrap_observations":   data.ScrapObservations,
		"scrap_return_invoice": data.ScrapReturnInvoice,
		"scrap_return_date":    data.ScrapReturnDate,
		"scrap_validated":      data.ScrapValidated,
		"updated_at":           time.Now(),
	}
	if data.Status != "" {
		cycleUpdates["status"] = data.Status
		cycleUpdates["outcome"] = models.OutcomeForStatus(data.Status)
	}
	if err := r.db.Model(cycle).Updates(cycleUpdates).Error; err != nil {
		return nil, nil, fmt.Errorf("falha ao atualizar ciclo %s: %w", cycle.ID, err)
	}

	if err := r.reconcileServices(&sector, cycle, data); err != nil {
		msg := fmt.Sprintf("seleção de serviços não reconciliada: %v", err)
		log.Printf("⚠️  %s", msg)
		warnings = append(warnings, msg)
	}

	warnings = append(warnings, r.appendPhotos(&sector, cycle, data)...)

	view, err := r.expand(sector)
	if err != nil {
		return nil, warnings, err
	}
	return view, warnings, nil
}

func (r *SectorRepository) reconcileServices(sector *models.Sector, cycle *models.Cycle, data *models.SectorView) error {
	var existing []models.CycleService
	if err := r.db.Where("cycle_id = ?", cycle.ID).Find(&existing).Error; err != nil {
		return err
	}
	current := make(map[string]models.CycleService, len(existing))
	for _, cs := range existing {
		current[cs.ServiceTypeID] = cs
	}

	selected := make(map[string]bool)
	for _, svc := range data.SelectedServices() {
		selected[svc.ID] = true
		if row, ok := current[svc.ID]; ok {
			updates := map[string]interface{}{
				"selected":     true,
				"quantity":     svc.Quantity,
				"observations": svc.Observations,
				"updated_at":   time.Now(),
			}
			if svc.Completed {
				updates["completed"] = true
			}
			if err := r.db.Model(&models.CycleService{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
				return err
			}
		} else {
			cs := models.CycleService{
				CycleID:       cycle.ID,
				SectorID:      sector.ID,
				ServiceTypeID: svc.ID,
				Selected:      true,
				Quantity:      svc.Quantity,
				Observations:  svc.Observations,
				Completed:     svc.Completed,
			}
			if err := r.db.Create(&cs).Error; err != nil {
				return err
			}
		}
	}

	for typeID, row := range current {
		if !selected[typeID] {
			if err := r.db.Delete(&models.CycleService{}, "id = ?", row.ID).Error; err != nil {
				return err
			}
		}
	}

	// The sector-scoped mirror has no server-side fields, so a full replace
	// is safe there.
	if err := r.db.Delete(&models.SectorService{}, "sector_id = ?", sector.ID).Error; err != nil {
		return err
	}
	for _, svc := range data.SelectedServices() {
		ss := models.SectorService{
			SectorID:      sector.ID,
			ServiceTypeID: svc.ID,
			Selected:      true,
			Quantity:      svc.Quantity,
		}
		if err := r.db.Create(&ss).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *SectorRepository) appendPhotos(sector *models.Sector, cycle *models.Cycle, data *models.SectorView) []string {
	var warnings []string

	var existing []models.SectorPhoto
	if err := r.db.Where("cycle_id = ?", cycle.ID).Find(&existing).Error; err != nil {
		msg := fmt.Sprintf("fotos existentes não carregadas, anexo ignorado: %v", err)
		log.Printf("⚠️  %s", msg)
		return append(warnings, msg)
	}

	incoming := make([]models.PhotoView, 0, len(data.BeforePhotos)+len(data.AfterPhotos)+len(data.ScrapPhotos))
	incoming = append(incoming, data.BeforePhotos...)
	incoming = append(incoming, data.AfterPhotos...)
	incoming = append(incoming, data.ScrapPhotos...)

	for _, p := range MissingPhotoURLs(existing, incoming) {
		row := models.SectorPhoto{
			SectorID:  sector.ID,
			CycleID:   &cycle.ID,
			ServiceID: p.ServiceID,
			URL:       p.URL,
			Type:      p.Type,
			Metadata:  photoMetadata(sector.ID, stageForPhotoType(p.Type), p.Type, p.ServiceID),
		}
		if err := r.db.Create(&row).Error; err != nil {
			msg := fmt.Sprintf("foto %s não gravada: %v", p.URL, err)
			log.Printf("⚠️  %s", msg)
			warnings = append(warnings, msg)
		}
	}
	return warnings
}

// RecordPhotoMetadata backfills the metadata blob on the active cycle's photo
// rows. The step touches only the photo table and every row is individually
// retryable, so failures are warnings.
func (r *SectorRepository) RecordPhotoMetadata(sectorID uuid.UUID) []string {
	var warnings []string

	cycle, err := r.latestCycle(sectorID)
	if err != nil || cycle == nil {
		msg := fmt.Sprintf("metadados de fotos não gravados para o setor %s: ciclo indisponível", sectorID)
		log.Printf("⚠️  %s", msg)
		return append(warnings, msg)
	}

	var photos []models.SectorPhoto
	if err := r.db.Where("cycle_id = ? AND (metadata IS NULL OR metadata = 'null')", cycle.ID).Find(&photos).Error; err != nil {
		msg := fmt.Sprintf("fotos sem metadados não carregadas: %v", err)
		log.Printf("⚠️  %s", msg)
		return append(warnings, msg)
	}

	for _, p := range photos {
		meta := photoMetadata(sectorID, stageForPhotoType(p.Type), p.Type, p.ServiceID)
		if err := r.db.Model(&models.SectorPhoto{}).Where("id = ?", p.ID).Update("metadata", meta).Error; err != nil {
			msg := fmt.Sprintf("metadados da foto %s não gravados: %v", p.ID, err)
			log.Printf("⚠️  %s", msg)
			warnings = append(warnings, msg)
		}
	}
	return warnings
}

// Delete removes the sector; cycles, service selections and photos go with it
// through the cascading foreign keys.
func (r *SectorRepository) Delete(id uuid.UUID) error {
	result := r.db.Delete(&models.Sector{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("falha ao excluir setor %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("setor %s não encontrado", id)
	}
	log.Printf("✅ Setor excluído: %s", id)
	return nil
}
