package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"p9e.in/recup/models"
	"p9e.in/recup/utils"
)

// ErrNotAuthenticated aborts a submission before any write.
var ErrNotAuthenticated = errors.New("usuário não autenticado")

// SectorStore is the slice of the repository the orchestrator needs.
type SectorStore interface {
	GetByID(id uuid.UUID) (*models.SectorView, error)
	GetByTag(tagNumber string) ([]models.SectorView, error)
	Add(data *models.SectorView, userID string) (*models.SectorView, []string, error)
	Update(id uuid.UUID, data *models.SectorView) (*models.SectorView, []string, error)
	RecordPhotoMetadata(sectorID uuid.UUID) []string
}

// StatusWriter applies a workflow transition.
type StatusWriter interface {
	SetStatus(sectorID uuid.UUID, status models.Status) ([]string, error)
}

// PhotoFile is a raw photo handed to the upload collaborator during
// submission.
type PhotoFile struct {
	Name      string
	Content   io.Reader
	Type      models.PhotoType
	ServiceID *string
}

// SubmissionResult carries the persisted sector together with the non-fatal
// warnings accumulated along the way, so callers can assert on them instead
// of relying on log output.
type SubmissionResult struct {
	Sector   *models.SectorView `json:"sector"`
	Warnings []string           `json:"warnings,omitempty"`
}

// SubmissionService drives a submission end to end: authentication check,
// stage validation, photo processing, the retried create/update, the status
// transition and the photo-metadata backfill.
type SubmissionService struct {
	store    SectorStore
	status   StatusWriter
	uploader PhotoUploader
	retry    utils.RetryPolicy
}

func NewSubmissionService(store SectorStore, status StatusWriter, uploader PhotoUploader) *SubmissionService {
	return &SubmissionService{
		store:    store,
		status:   status,
		uploader: uploader,
		retry:    utils.RetryPolicy{MaxAttempts: 15, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
	}
}

func targetStatus(kind SubmissionKind) models.Status {
	switch kind {
	case SubmissionEntry:
		return models.StatusEmExecucao
	case SubmissionExit:
		return models.StatusConcluido
	case SubmissionScrapIntake:
		return models.StatusSucateadoPendente
	case SubmissionScrapValidate:
		return models.StatusSucateado
	default:
		return models.StatusPeritagemPendente
	}
}

// cycleCountBase derives the next cycle count for a tag from its persisted
// history. The value can collide under concurrent intakes for the same tag;
// the retry loop adds the attempt offset so each retry draws a new candidate.
func (s *SubmissionService) cycleCountBase(tagNumber string) int {
	views, err := s.store.GetByTag(tagNumber)
	if err != nil {
		log.Printf("⚠️  Histórico da TAG %s indisponível, assumindo primeiro ciclo: %v", tagNumber, err)
		return 1
	}
	max := 0
	for _, v := range views {
		if strings.EqualFold(v.TagNumber, tagNumber) && v.CycleCount > max {
			max = v.CycleCount
		}
	}
	return max + 1
}

// processPhotos uploads the raw files through the collaborator and returns
// their stable URLs. Any upload failure is fatal: a submission must not half
// reference assets that were never stored.
func (s *SubmissionService) processPhotos(ctx context.Context, files []PhotoFile) ([]models.PhotoView, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.uploader == nil {
		return nil, errors.New("serviço de upload de fotos indisponível")
	}
	out := make([]models.PhotoView, 0, len(files))
	for _, f := range files {
		url, err := s.uploader.Upload(ctx, f.Content, string(f.Type), f.Name)
		if err != nil {
			return nil, fmt.Errorf("falha ao enviar foto %s: %w", f.Name, err)
		}
		out = append(out, models.PhotoView{
			URL:       url,
			Type:      f.Type,
			ServiceID: f.ServiceID,
		})
	}
	return out, nil
}

// Submit runs the full sequence for one submission. Either the whole sequence
// completes or the caller gets a single error and should retry; no partial
// success state leaks out. Non-fatal warnings ride along in the result.
func (s *SubmissionService) Submit(ctx context.Context, userID string, sub Submission, files []PhotoFile) (*SubmissionResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNotAuthenticated
	}
	if err := ValidateSubmission(sub); err != nil {
		return nil, err
	}

	var existing *models.SectorView
	if sub.Sector.ID != uuid.Nil {
		found, err := s.store.GetByID(sub.Sector.ID)
		if err != nil {
			return nil, fmt.Errorf("falha ao carregar setor %s: %w", sub.Sector.ID, err)
		}
		if found == nil {
			return nil, fmt.Errorf("setor %s não encontrado", sub.Sector.ID)
		}
		existing = found
	}

	processed, err := s.processPhotos(ctx, files)
	if err != nil {
		return nil, err
	}

	result := &SubmissionResult{}

	if sub.Kind == SubmissionScrapValidate {
		sub.Sector.ScrapValidated = true
		now := time.Now()
		if sub.Sector.ScrapReturnDate == nil {
			sub.Sector.ScrapReturnDate = &now
		}
	}
	if sub.Kind == SubmissionExit && sub.Sector.ChecagemDate == nil {
		now := time.Now()
		sub.Sector.ChecagemDate = &now
	}

	isEdit := existing != nil
	base := 0
	if !isEdit {
		base = s.cycleCountBase(sub.Sector.TagNumber)
	}

	var saved *models.SectorView
	attempt := func(n int) error {
		prepared := PrepareSectorData(sub.Sector, existing, processed, base+n-1)
		if sub.Kind == SubmissionScrapIntake {
			prepared.Status = models.StatusSucateadoPendente
			prepared.Outcome = models.OutcomeSucateado
		}

		var warnings []string
		var err error
		if isEdit {
			saved, warnings, err = s.store.Update(existing.ID, prepared)
		} else {
			saved, warnings, err = s.store.Add(prepared, userID)
		}
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			log.Printf("⚠️  Tentativa %d de gravação do setor falhou: %v", n, err)
		}
		return err
	}
	if err := s.retry.Run(attempt, nil); err != nil {
		return nil, fmt.Errorf("não foi possível salvar o setor, tente novamente: %w", err)
	}

	// The status transition and the photo-metadata backfill touch disjoint
	// tables, so they run concurrently.
	target := targetStatus(sub.Kind)
	var wg sync.WaitGroup
	var statusWarnings []string
	var statusErr error
	var metaWarnings []string

	wg.Add(2)
	go func() {
		defer wg.Done()
		statusWarnings, statusErr = s.status.SetStatus(saved.ID, target)
	}()
	go func() {
		defer wg.Done()
		metaWarnings = s.store.RecordPhotoMetadata(saved.ID)
	}()
	wg.Wait()

	result.Warnings = append(result.Warnings, statusWarnings...)
	result.Warnings = append(result.Warnings, metaWarnings...)
	if statusErr != nil {
		return nil, fmt.Errorf("não foi possível salvar o setor, tente novamente: %w", statusErr)
	}

	saved.Status = target
	saved.Outcome = models.OutcomeForStatus(target)
	result.Sector = saved

	log.Printf("✅ Submissão %s concluída para o setor %s (TAG %s)", sub.Kind, saved.ID, saved.TagNumber)
	return result, nil
}
