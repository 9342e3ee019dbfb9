package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"p9e.in/recup/config"
	"p9e.in/recup/middleware"
	"p9e.in/recup/models"
)

// photoUploader is the upload collaborator wired at startup.
var photoUploader PhotoUploader

// SetPhotoUploader injects the storage backend chosen in main.
func SetPhotoUploader(u PhotoUploader) {
	photoUploader = u
}

func newSubmissionService() *SubmissionService {
	repo := NewSectorRepository(config.DB)
	return NewSubmissionService(repo, NewStatusService(config.DB), photoUploader)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func submissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ErrCycleNotFound), errors.Is(err, ErrTerminalStatus), IsCycleCountConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func GetAllSectors(w http.ResponseWriter, r *http.Request) {
	repo := NewSectorRepository(config.DB)
	sectors, err := repo.GetAll()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sectors)
}

func GetSector(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid sector id", http.StatusBadRequest)
		return
	}
	repo := NewSectorRepository(config.DB)
	sector, err := repo.GetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sector == nil {
		http.Error(w, "setor não encontrado", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sector)
}

func GetSectorsByTag(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	repo := NewSectorRepository(config.DB)
	sectors, err := repo.GetByTag(tag)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sectors)
}

type peritagemReq struct {
	Sector      *models.SectorView `json:"sector"`
	ScrapIntake bool               `json:"scrapIntake"`
}

// SubmitPeritagem creates (or edits) a sector through the inspection stage.
// The scrapIntake flag routes the payload down the scrap branch.
func SubmitPeritagem(w http.ResponseWriter, r *http.Request) {
	var req peritagemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	kind := SubmissionEntry
	if req.ScrapIntake {
		kind = SubmissionScrapIntake
	}

	svc := newSubmissionService()
	result, err := svc.Submit(r.Context(), middleware.GetUserID(r), Submission{Kind: kind, Sector: req.Sector}, nil)
	if err != nil {
		submissionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// SubmitChecagem closes the final-check stage for an existing sector.
func SubmitChecagem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid sector id", http.StatusBadRequest)
		return
	}
	var sector models.SectorView
	if err := json.NewDecoder(r.Body).Decode(&sector); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	sector.ID = id

	svc := newSubmissionService()
	result, err := svc.Submit(r.Context(), middleware.GetUserID(r), Submission{Kind: SubmissionExit, Sector: &sector}, nil)
	if err != nil {
		submissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SubmitScrap moves an existing sector onto the scrap branch.
func SubmitScrap(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid sector id", http.StatusBadRequest)
		return
	}
	var sector models.SectorView
	if err := json.NewDecoder(r.Body).Decode(&sector); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	sector.ID = id

	svc := newSubmissionService()
	result, err := svc.Submit(r.Context(), middleware.GetUserID(r), Submission{Kind: SubmissionScrapIntake, Sector: &sector}, nil)
	if err != nil {
		submissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ValidateScrap is the terminal confirmation of the scrap branch: it records
// the return invoice and moves the sector to sucateado.
func ValidateScrap(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid sector id", http.StatusBadRequest)
		return
	}
	var sector models.SectorView
	if err := json.NewDecoder(r.Body).Decode(&sector); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	sector.ID = id

	svc := newSubmissionService()
	result, err := svc.Submit(r.Context(), middleware.GetUserID(r), Submission{Kind: SubmissionScrapValidate, Sector: &sector}, nil)
	if err != nil {
		submissionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func DeleteSector(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid sector id", http.StatusBadRequest)
		return
	}
	repo := NewSectorRepository(config.DB)
	if err := repo.Delete(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetServiceTypes lists the repair-service catalog.
func GetServiceTypes(w http.ResponseWriter, r *http.Request) {
	var types []models.ServiceType
	if err := config.DB.Where("is_active = ?", true).Order("name").Find(&types).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, types)
}
