package handlers

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"p9e.in/recup/models"
)

// ErrTerminalStatus guards the invariant that no transition leaves concluido
// or sucateado.
var ErrTerminalStatus = errors.New("setor em estado terminal não pode mudar de status")

// StatusService applies a status change to the sector's denormalized current
// status and to its active cycle, keeping the two in step.
type StatusService struct {
	db *gorm.DB
}

func NewStatusService(db *gorm.DB) *StatusService {
	return &StatusService{db: db}
}

// SetStatus writes status and the derived outcome to both the sector row and
// the active cycle row.
//
// On the scrap branch the write is verified by re-reading the sector: a
// trigger or row policy silently rejecting it would leave a scrapped unit in
// a prior state, and such a unit never surfaces in any queue again. A
// mismatch gets one forced rewrite; a second failure is reported as a warning
// because the sector record itself is intact, only its status flag is stale.
func (s *StatusService) SetStatus(sectorID uuid.UUID, status models.Status) ([]string, error) {
	var warnings []string

	var sector models.Sector
	if err := s.db.First(&sector, "id = ?", sectorID).Error; err != nil {
		return nil, fmt.Errorf("setor %s não encontrado: %w", sectorID, err)
	}

	// Rewriting the current status is always allowed, terminal or not: a
	// resubmission whose rows already carry the target status must still
	// complete instead of failing after everything was written.
	if status != sector.CurrentStatus {
		if sector.CurrentStatus.IsTerminal() {
			return nil, ErrTerminalStatus
		}
		if !sector.CurrentStatus.CanTransitionTo(status) {
			return nil, fmt.Errorf("transição inválida: %s -> %s", sector.CurrentStatus, status)
		}
	}

	var cycle models.Cycle
	err := s.db.Where("sector_id = ?", sectorID).
		Order("created_at DESC").
		Limit(1).
		First(&cycle).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCycleNotFound
		}
		return nil, fmt.Errorf("falha ao buscar ciclo do setor %s: %w", sectorID, err)
	}

	outcome := models.OutcomeForStatus(status)
	sectorUpdates := map[string]interface{}{
		"current_status":  status,
		"current_outcome": outcome,
		"updated_at":      time.Now(),
	}
	if err := s.db.Model(&models.Sector{}).Where("id = ?", sectorID).Updates(sectorUpdates).Error; err != nil {
		return nil, fmt.Errorf("falha ao gravar status do setor %s: %w", sectorID, err)
	}

	cycleUpdates := map[string]interface{}{
		"status":     status,
		"outcome":    outcome,
		"updated_at": time.Now(),
	}
	if err := s.db.Model(&models.Cycle{}).Where("id = ?", cycle.ID).Updates(cycleUpdates).Error; err != nil {
		return nil, fmt.Errorf("falha ao gravar status do ciclo %s: %w", cycle.ID, err)
	}

	if status == models.StatusSucateadoPendente {
		var persisted models.Sector
		if err := s.db.First(&persisted, "id = ?", sectorID).Error; err == nil && persisted.CurrentStatus != status {
			log.Printf("⚠️  Status de sucateamento não persistiu no setor %s (lido: %s), forçando regravação", sectorID, persisted.CurrentStatus)
			if err := s.db.Model(&models.Sector{}).Where("id = ?", sectorID).Updates(sectorUpdates).Error; err != nil {
				msg := fmt.Sprintf("regravação forçada do status falhou no setor %s: %v", sectorID, err)
				log.Printf("⚠️  %s", msg)
				warnings = append(warnings, msg)
			}
		}
	}

	log.Printf("✅ Status do setor %s: %s (%s)", sectorID, status, outcome)
	return warnings, nil
}
