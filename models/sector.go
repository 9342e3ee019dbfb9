package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Status is the recovery workflow stage of a sector.
type Status string

const (
	StatusPeritagemPendente     Status = "peritagemPendente"
	StatusEmExecucao            Status = "emExecucao"
	StatusChecagemFinalPendente Status = "checagemFinalPendente"
	StatusConcluido             Status = "concluido"
	StatusSucateadoPendente     Status = "sucateadoPendente"
	StatusSucateado             Status = "sucateado"
)

// Outcome is the denormalized end result of the active cycle.
type Outcome string

const (
	OutcomeEmAndamento Outcome = "EmAndamento"
	OutcomeRecuperado  Outcome = "Recuperado"
	OutcomeSucateado   Outcome = "Sucateado"
)

// PhotoType classifies a photo within a cycle.
type PhotoType string

const (
	PhotoTypeTag    PhotoType = "tag"
	PhotoTypeBefore PhotoType = "before"
	PhotoTypeAfter  PhotoType = "after"
	PhotoTypeScrap  PhotoType = "scrap"
)

// statusFlow holds the allowed forward transitions. Terminal states map to an
// empty slice so no transition can leave them.
var statusFlow = map[Status][]Status{
	StatusPeritagemPendente:     {StatusEmExecucao, StatusSucateadoPendente},
	StatusEmExecucao:            {StatusChecagemFinalPendente, StatusConcluido},
	StatusChecagemFinalPendente: {StatusConcluido},
	StatusSucateadoPendente:     {StatusSucateado},
	StatusConcluido:             {},
	StatusSucateado:             {},
}

// IsTerminal reports whether no transition can leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusConcluido || s == StatusSucateado
}

// CanTransitionTo reports whether the workflow allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusFlow[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OutcomeForStatus derives the denormalized outcome written alongside a status.
func OutcomeForStatus(s Status) Outcome {
	switch s {
	case StatusConcluido:
		return OutcomeRecuperado
	case StatusSucateadoPendente, StatusSucateado:
		return OutcomeSucateado
	default:
		return OutcomeEmAndamento
	}
}

// Sector is one physical unit under recovery. The tag number is the business
// identifier and is not unique across time: a tag re-entering recovery gets a
// fresh sector row with an incremented cycle count. (tag_number, cycle_count)
// carries a unique index so concurrent intakes for the same tag collide
// instead of silently duplicating.
type Sector struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TagNumber      string    `gorm:"size:50;not null;index;uniqueIndex:idx_sectors_tag_cycle" json:"tagNumber"`
	TagPhotoURL    string    `gorm:"size:500" json:"tagPhotoUrl"`
	CurrentStatus  Status    `gorm:"type:varchar(30);not null;default:'peritagemPendente'" json:"currentStatus"`
	CurrentOutcome Outcome   `gorm:"type:varchar(20);not null;default:'EmAndamento'" json:"currentOutcome"`
	CycleCount     int       `gorm:"not null;default:1;uniqueIndex:idx_sectors_tag_cycle" json:"cycleCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Cycles   []Cycle         `gorm:"foreignKey:SectorID;constraint:OnDelete:CASCADE" json:"cycles,omitempty"`
	Photos   []SectorPhoto   `gorm:"foreignKey:SectorID;constraint:OnDelete:CASCADE" json:"photos,omitempty"`
	Services []SectorService `gorm:"foreignKey:SectorID;constraint:OnDelete:CASCADE" json:"services,omitempty"`
}

func (s *Sector) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}

// Cycle is one pass of a sector through the workflow. The most recent cycle by
// creation time is the active one; older rows are history and never mutated.
type Cycle struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SectorID  uuid.UUID `gorm:"type:uuid;not null;index" json:"sectorId"`
	TagNumber string    `gorm:"size:50;not null;index" json:"tagNumber"`
	Status    Status    `gorm:"type:varchar(30);not null" json:"status"`
	Outcome   Outcome   `gorm:"type:varchar(20);not null;default:'EmAndamento'" json:"outcome"`

	// Entry / peritagem
	EntryInvoice      string     `gorm:"size:100" json:"entryInvoice"`
	EntryDate         *time.Time `json:"entryDate,omitempty"`
	EntryObservations string     `gorm:"type:text" json:"entryObservations"`
	PeritagemDate     *time.Time `json:"peritagemDate,omitempty"`

	// Exit / checagem, meaningful once status has left emExecucao
	ProductionCompleted bool       `gorm:"default:false" json:"productionCompleted"`
	ExitInvoice         string     `gorm:"size:100" json:"exitInvoice"`
	ExitDate            *time.Time `json:"exitDate,omitempty"`
	ExitObservations    string     `gorm:"type:text" json:"exitObservations"`
	ChecagemDate        *time.Time `json:"checagemDate,omitempty"`

	// Scrap branch only
	ScrapObservations  string     `gorm:"type:text" json:"scrapObservations"`
	ScrapReturnInvoice string     `gorm:"size:100" json:"scrapReturnInvoice"`
	ScrapReturnDate    *time.Time `json:"scrapReturnDate,omitempty"`
	ScrapValidated     bool       `gorm:"default:false" json:"scrapValidated"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Services []CycleService `gorm:"foreignKey:CycleID;constraint:OnDelete:CASCADE" json:"services,omitempty"`
}

func (c *Cycle) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}

// ServiceType is a catalog entry for a repair action. Seeded at startup.
type ServiceType struct {
	ID          string    `gorm:"size:40;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    bool      `gorm:"default:true" json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CycleService is the cycle-scoped service selection. It is the authoritative
// record and carries the completed flag set during checagem.
type CycleService struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CycleID       uuid.UUID `gorm:"type:uuid;not null;index" json:"cycleId"`
	SectorID      uuid.UUID `gorm:"type:uuid;not null;index" json:"sectorId"`
	ServiceTypeID string    `gorm:"size:40;not null" json:"serviceTypeId"`
	Selected      bool      `gorm:"default:false" json:"selected"`
	Quantity      int       `gorm:"default:0" json:"quantity"`
	Observations  string    `gorm:"type:text" json:"observations"`
	Completed     bool      `gorm:"default:false" json:"completed"`
	Stage         string    `gorm:"size:20" json:"stage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (cs *CycleService) BeforeCreate(tx *gorm.DB) (err error) {
	if cs.ID == uuid.Nil {
		cs.ID = uuid.New()
	}
	return
}

// SectorService mirrors the selection at sector scope. Kept in sync with
// CycleService but written independently; a partial write here is recoverable
// through a later edit.
type SectorService struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SectorID      uuid.UUID `gorm:"type:uuid;not null;index" json:"sectorId"`
	ServiceTypeID string    `gorm:"size:40;not null" json:"serviceTypeId"`
	Selected      bool      `gorm:"default:false" json:"selected"`
	Quantity      int       `gorm:"default:0" json:"quantity"`
	Stage         string    `gorm:"size:20" json:"stage"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (ss *SectorService) BeforeCreate(tx *gorm.DB) (err error) {
	if ss.ID == uuid.Nil {
		ss.ID = uuid.New()
	}
	return
}

// SectorPhoto is a photo reference. ServiceID absent means a sector-level
// photo (tag photo, general entry/exit shots). The metadata blob repeats
// sector id, stage and type so rows stay interpretable if the relational
// layout around them changes; a type present in metadata overrides the column
// (photos can be reclassified after upload).
type SectorPhoto struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SectorID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"sectorId"`
	CycleID   *uuid.UUID     `gorm:"type:uuid;index" json:"cycleId,omitempty"`
	ServiceID *string        `gorm:"size:40" json:"serviceId,omitempty"`
	URL       string         `gorm:"size:500;not null" json:"url"`
	Type      PhotoType      `gorm:"type:varchar(20);not null" json:"type"`
	Metadata  datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (p *SectorPhoto) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return
}
