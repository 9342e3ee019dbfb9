package handlers

import (
	"errors"
	"fmt"
	"strings"

	"p9e.in/recup/models"
)

// SubmissionKind selects which stage's rule set gates a submission.
type SubmissionKind string

const (
	SubmissionEntry         SubmissionKind = "entry"
	SubmissionExit          SubmissionKind = "exit"
	SubmissionScrapIntake   SubmissionKind = "scrapIntake"
	SubmissionScrapValidate SubmissionKind = "scrapValidate"
)

// Submission is the stage-tagged payload handed to validation and the
// orchestrator. Each kind enforces its own required fields instead of runtime
// presence checks over one shared partial shape.
type Submission struct {
	Kind   SubmissionKind     `json:"kind"`
	Sector *models.SectorView `json:"sector"`
}

var (
	ErrTagNumberRequired     = errors.New("número da TAG é obrigatório")
	ErrEntryInvoiceRequired  = errors.New("nota fiscal de entrada é obrigatória")
	ErrEntryDateRequired     = errors.New("data de entrada é obrigatória")
	ErrTagPhotoRequired      = errors.New("foto da TAG é obrigatória")
	ErrNoServiceSelected     = errors.New("selecione pelo menos um serviço")
	ErrScrapObsRequired      = errors.New("observações de sucateamento são obrigatórias")
	ErrScrapPhotoRequired    = errors.New("pelo menos uma foto do sucateamento é obrigatória")
	ErrExitInvoiceRequired   = errors.New("nota fiscal de saída é obrigatória")
	ErrReturnInvoiceRequired = errors.New("nota fiscal de devolução é obrigatória")
)

// ValidateSubmission runs the stage's rule set and returns the first
// violation, or nil. No writes happen before this passes.
func ValidateSubmission(sub Submission) error {
	if sub.Sector == nil {
		return errors.New("dados do setor ausentes")
	}
	switch sub.Kind {
	case SubmissionEntry:
		return validateEntry(sub.Sector, false)
	case SubmissionScrapIntake:
		return validateEntry(sub.Sector, true)
	case SubmissionExit:
		return validateExit(sub.Sector)
	case SubmissionScrapValidate:
		return validateScrap(sub.Sector)
	default:
		return fmt.Errorf("tipo de submissão desconhecido: %s", sub.Kind)
	}
}

func validateEntry(s *models.SectorView, scrapIntake bool) error {
	if strings.TrimSpace(s.TagNumber) == "" {
		return ErrTagNumberRequired
	}
	if strings.TrimSpace(s.EntryInvoice) == "" {
		return ErrEntryInvoiceRequired
	}
	if s.EntryDate == nil {
		return ErrEntryDateRequired
	}
	if strings.TrimSpace(s.TagPhotoURL) == "" {
		return ErrTagPhotoRequired
	}

	// Scrap at intake skips service validation entirely.
	if scrapIntake {
		if strings.TrimSpace(s.ScrapObservations) == "" {
			return ErrScrapObsRequired
		}
		if len(s.ScrapPhotos) == 0 {
			return ErrScrapPhotoRequired
		}
		return nil
	}

	selected := s.SelectedServices()
	if len(selected) == 0 {
		return ErrNoServiceSelected
	}

	var missingQty, missingPhoto []string
	for _, svc := range selected {
		if svc.Quantity <= 0 {
			missingQty = append(missingQty, serviceLabel(svc))
		}
		if countPhotos(svc, models.PhotoTypeBefore) == 0 {
			missingPhoto = append(missingPhoto, serviceLabel(svc))
		}
	}
	if len(missingQty) > 0 {
		return fmt.Errorf("quantidade deve ser maior que zero nos serviços: %s", strings.Join(missingQty, ", "))
	}
	if len(missingPhoto) > 0 {
		return fmt.Errorf("adicione pelo menos uma foto do defeito nos serviços: %s", strings.Join(missingPhoto, ", "))
	}
	return nil
}

func validateExit(s *models.SectorView) error {
	if strings.TrimSpace(s.ExitInvoice) == "" {
		return ErrExitInvoiceRequired
	}

	var missing []string
	for _, svc := range s.Services {
		if svc.Completed && countPhotos(svc, models.PhotoTypeAfter) == 0 {
			missing = append(missing, serviceLabel(svc))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("adicione pelo menos uma foto do serviço executado nos serviços: %s", strings.Join(missing, ", "))
	}
	return nil
}

// validateScrap is the terminal confirmation step of the scrap branch,
// distinct from the intake-time scrap flag.
func validateScrap(s *models.SectorView) error {
	if strings.TrimSpace(s.ScrapReturnInvoice) == "" {
		return ErrReturnInvoiceRequired
	}
	return nil
}

func countPhotos(svc models.ServiceView, t models.PhotoType) int {
	n := 0
	for _, p := range svc.Photos {
		if p.Type == t {
			n++
		}
	}
	return n
}

func serviceLabel(svc models.ServiceView) string {
	if svc.Name != "" {
		return svc.Name
	}
	return svc.ID
}
