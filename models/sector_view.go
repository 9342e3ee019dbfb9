package models

import (
	"time"

	"github.com/google/uuid"
)

// PhotoView is a photo as exposed to the API, with its effective type already
// resolved (metadata over raw column).
type PhotoView struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Type      PhotoType `json:"type"`
	ServiceID *string   `json:"serviceId,omitempty"`
}

// ServiceView is a service selection with its photos joined in.
type ServiceView struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Selected     bool        `json:"selected"`
	Quantity     int         `json:"quantity"`
	Observations string      `json:"observations"`
	Completed    bool        `json:"completed"`
	Photos       []PhotoView `json:"photos"`
}

// SectorView is the nested domain object assembled from the normalized rows:
// the sector, its active cycle flattened in, services with their photos, the
// photo sets partitioned by type, and the historical cycles for the tag.
type SectorView struct {
	ID          uuid.UUID `json:"id"`
	TagNumber   string    `json:"tagNumber"`
	TagPhotoURL string    `json:"tagPhotoUrl"`
	Status      Status    `json:"status"`
	Outcome     Outcome   `json:"outcome"`
	CycleCount  int       `json:"cycleCount"`

	EntryInvoice      string     `json:"entryInvoice"`
	EntryDate         *time.Time `json:"entryDate,omitempty"`
	EntryObservations string     `json:"entryObservations"`
	PeritagemDate     *time.Time `json:"peritagemDate,omitempty"`

	Services     []ServiceView `json:"services"`
	BeforePhotos []PhotoView   `json:"beforePhotos"`
	AfterPhotos  []PhotoView   `json:"afterPhotos"`
	ScrapPhotos  []PhotoView   `json:"scrapPhotos"`

	ProductionCompleted bool       `json:"productionCompleted"`
	ExitInvoice         string     `json:"exitInvoice"`
	ExitDate            *time.Time `json:"exitDate,omitempty"`
	ExitObservations    string     `json:"exitObservations"`
	ChecagemDate        *time.Time `json:"checagemDate,omitempty"`

	ScrapObservations  string     `json:"scrapObservations"`
	ScrapReturnInvoice string     `json:"scrapReturnInvoice"`
	ScrapReturnDate    *time.Time `json:"scrapReturnDate,omitempty"`
	ScrapValidated     bool       `json:"scrapValidated"`

	// Audit/report display only, never written back.
	PreviousCycles []Cycle `json:"previousCycles,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SelectedServices returns the services marked as selected.
func (v *SectorView) SelectedServices() []ServiceView {
	var out []ServiceView
	for _, s := range v.Services {
		if s.Selected {
			out = append(out, s)
		}
	}
	return out
}
