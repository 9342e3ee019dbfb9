package handlers

import (
	"encoding/json"

	"p9e.in/recup/models"
)

// EffectivePhotoType resolves the type of a photo row. A "type" key in the
// metadata blob wins over the raw column: photos reclassified after upload
// keep the column they were inserted with but carry the corrected type in
// metadata.
func EffectivePhotoType(p models.SectorPhoto) models.PhotoType {
	if len(p.Metadata) > 0 {
		var meta map[string]interface{}
		if err := json.Unmarshal(p.Metadata, &meta); err == nil {
			if t, ok := meta["type"].(string); ok && t != "" {
				return models.PhotoType(t)
			}
		}
	}
	return p.Type
}

func toPhotoView(p models.SectorPhoto) models.PhotoView {
	return models.PhotoView{
		ID:        p.ID,
		URL:       p.URL,
		Type:      EffectivePhotoType(p),
		ServiceID: p.ServiceID,
	}
}

// BuildSectorView converts the normalized rows of one sector into the nested
// domain object. Total: a nil cycle yields a minimal view from the sector row
// alone (a crash between the sector and cycle inserts must not hide the
// record), missing optional fields map to zero values and photo slices are
// never nil.
func BuildSectorView(
	sector models.Sector,
	cycle *models.Cycle,
	services []models.CycleService,
	serviceTypes map[string]models.ServiceType,
	photos []models.SectorPhoto,
	previousCycles []models.Cycle,
) *models.SectorView {
	view := &models.SectorView{
		ID:             sector.ID,
		TagNumber:      sector.TagNumber,
		TagPhotoURL:    sector.TagPhotoURL,
		Status:         sector.CurrentStatus,
		Outcome:        sector.CurrentOutcome,
		CycleCount:     sector.CycleCount,
		Services:       []models.ServiceView{},
		BeforePhotos:   []models.PhotoView{},
		AfterPhotos:    []models.PhotoView{},
		ScrapPhotos:    []models.PhotoView{},
		PreviousCycles: previousCycles,
		CreatedAt:      sector.CreatedAt,
		UpdatedAt:      sector.UpdatedAt,
	}
	if view.Status == "" {
		view.Status = models.StatusPeritagemPendente
	}
	if view.Outcome == "" {
		view.Outcome = models.OutcomeEmAndamento
	}
	if view.CycleCount <= 0 {
		view.CycleCount = 1
	}

	if cycle != nil {
		view.EntryInvoice = cycle.EntryInvoice
		view.EntryDate = cycle.EntryDate
		view.EntryObservations = cycle.EntryObservations
		view.PeritagemDate = cycle.PeritagemDate
		view.ProductionCompleted = cycle.ProductionCompleted
		view.ExitInvoice = cycle.ExitInvoice
		view.ExitDate = cycle.ExitDate
		view.ExitObservations = cycle.ExitObservations
		view.ChecagemDate = cycle.ChecagemDate
		view.ScrapObservations = cycle.ScrapObservations
		view.ScrapReturnInvoice = cycle.ScrapReturnInvoice
		view.ScrapReturnDate = cycle.ScrapReturnDate
		view.ScrapValidated = cycle.ScrapValidated
		if cycle.Status != "" {
			view.Status = cycle.Status
		}
	}

	// Photos join services by service id; the rest are sector-level.
	byService := make(map[string][]models.PhotoView)
	for _, p := range photos {
		pv := toPhotoView(p)
		if p.ServiceID != nil && *p.ServiceID != "" {
			byService[*p.ServiceID] = append(byService[*p.ServiceID], pv)
		}
		switch pv.Type {
		case models.PhotoTypeBefore:
			view.BeforePhotos = append(view.BeforePhotos, pv)
		case models.PhotoTypeAfter:
			view.AfterPhotos = append(view.AfterPhotos, pv)
		case models.PhotoTypeScrap:
			view.ScrapPhotos = append(view.ScrapPhotos, pv)
		case models.PhotoTypeTag:
			if view.TagPhotoURL == "" {
				view.TagPhotoURL = pv.URL
			}
		}
	}

	for _, svc := range services {
		sv := models.ServiceView{
			ID:           svc.ServiceTypeID,
			Selected:     svc.Selected,
			Quantity:     svc.Quantity,
			Observations: svc.Observations,
			Completed:    svc.Completed,
			Photos:       byService[svc.ServiceTypeID],
		}
		if sv.Photos == nil {
			sv.Photos = []models.PhotoView{}
		}
		if st, ok := serviceTypes[svc.ServiceTypeID]; ok {
			sv.Name = st.Name
		}
		view.Services = append(view.Services, sv)
	}

	return view
}

// MissingPhotoURLs filters out photos whose URL already exists for the same
// type. The same asset can be resubmitted across partial saves; appends are
// deduplicated by URL so retries stay idempotent.
func MissingPhotoURLs(existing []models.SectorPhoto, incoming []models.PhotoView) []models.PhotoView {
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[string(EffectivePhotoType(p))+"|"+p.URL] = true
	}
	var out []models.PhotoView
	for _, p := range incoming {
		key := string(p.Type) + "|" + p.URL
		if p.URL == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
