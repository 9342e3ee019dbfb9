package handlers

import (
	"errors"
	"strings"
	"testing"
	"time"

	"p9e.in/recup/models"
)

func entrySector() *models.SectorView {
	entry := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.SectorView{
		TagNumber:    "T-100",
		EntryInvoice: "NF-1",
		EntryDate:    &entry,
		TagPhotoURL:  "http://x/tag.jpg",
		Services: []models.ServiceView{
			{
				ID: "troca_tela", Name: "Troca de Tela", Selected: true, Quantity: 2,
				Photos: []models.PhotoView{{URL: "http://x/b.jpg", Type: models.PhotoTypeBefore}},
			},
		},
	}
}

func TestValidateSubmission_Entry(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.SectorView)
		wantErr error
	}{
		{"valid entry", func(s *models.SectorView) {}, nil},
		{"missing tag", func(s *models.SectorView) { s.TagNumber = " " }, ErrTagNumberRequired},
		{"missing invoice", func(s *models.SectorView) { s.EntryInvoice = "" }, ErrEntryInvoiceRequired},
		{"missing date", func(s *models.SectorView) { s.EntryDate = nil }, ErrEntryDateRequired},
		{"missing tag photo", func(s *models.SectorView) { s.TagPhotoURL = "" }, ErrTagPhotoRequired},
		{"no service selected", func(s *models.SectorView) { s.Services[0].Selected = false }, ErrNoServiceSelected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := entrySector()
			tt.mutate(s)
			err := ValidateSubmission(Submission{Kind: SubmissionEntry, Sector: s})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSubmission() = %v, expected %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSubmission_EntryNamesOffendingServices(t *testing.T) {
	s := entrySector()
	s.Services[0].Photos = nil
	s.Services = append(s.Services, models.ServiceView{
		ID: "pintura", Name: "Pintura", Selected: true, Quantity: 1,
		Photos: []models.PhotoView{{URL: "http://x/p.jpg", Type: models.PhotoTypeBefore}},
	})

	err := ValidateSubmission(Submission{Kind: SubmissionEntry, Sector: s})
	if err == nil {
		t.Fatal("expected validation failure for service without before photo")
	}
	if !strings.Contains(err.Error(), "Troca de Tela") {
		t.Errorf("error %q must name the offending service", err)
	}
	if strings.Contains(err.Error(), "Pintura") {
		t.Errorf("error %q must not name compliant services", err)
	}

	// Adding one before photo makes the same payload pass.
	s.Services[0].Photos = []models.PhotoView{{URL: "http://x/b2.jpg", Type: models.PhotoTypeBefore}}
	if err := ValidateSubmission(Submission{Kind: SubmissionEntry, Sector: s}); err != nil {
		t.Errorf("expected pass after adding before photo, got %v", err)
	}
}

func TestValidateSubmission_EntryQuantity(t *testing.T) {
	s := entrySector()
	s.Services[0].Quantity = 0

	err := ValidateSubmission(Submission{Kind: SubmissionEntry, Sector: s})
	if err == nil || !strings.Contains(err.Error(), "Troca de Tela") {
		t.Errorf("expected quantity error naming the service, got %v", err)
	}
}

func TestValidateSubmission_ScrapIntake(t *testing.T) {
	base := func() *models.SectorView {
		s := entrySector()
		s.Services = nil // scrap intake skips service validation entirely
		s.ScrapObservations = "estrutura comprometida"
		s.ScrapPhotos = []models.PhotoView{{URL: "http://x/s.jpg", Type: models.PhotoTypeScrap}}
		return s
	}

	if err := ValidateSubmission(Submission{Kind: SubmissionScrapIntake, Sector: base()}); err != nil {
		t.Errorf("valid scrap intake rejected: %v", err)
	}

	s := base()
	s.ScrapObservations = ""
	if err := ValidateSubmission(Submission{Kind: SubmissionScrapIntake, Sector: s}); !errors.Is(err, ErrScrapObsRequired) {
		t.Errorf("expected ErrScrapObsRequired, got %v", err)
	}

	s = base()
	s.ScrapPhotos = nil
	if err := ValidateSubmission(Submission{Kind: SubmissionScrapIntake, Sector: s}); !errors.Is(err, ErrScrapPhotoRequired) {
		t.Errorf("expected ErrScrapPhotoRequired, got %v", err)
	}
}

func TestValidateSubmission_Exit(t *testing.T) {
	base := func() *models.SectorView {
		return &models.SectorView{
			TagNumber:   "T-100",
			ExitInvoice: "NF-2",
			Services: []models.ServiceView{
				{
					ID: "solda", Name: "Solda", Selected: true, Quantity: 1, Completed: true,
					Photos: []models.PhotoView{{URL: "http://x/a.jpg", Type: models.PhotoTypeAfter}},
				},
			},
		}
	}

	if err := ValidateSubmission(Submission{Kind: SubmissionExit, Sector: base()}); err != nil {
		t.Errorf("valid exit rejected: %v", err)
	}

	s := base()
	s.ExitInvoice = ""
	if err := ValidateSubmission(Submission{Kind: SubmissionExit, Sector: s}); !errors.Is(err, ErrExitInvoiceRequired) {
		t.Errorf("expected ErrExitInvoiceRequired, got %v", err)
	}

	// Completed service with zero after photos fails naming the service;
	// adding one after photo makes the same payload pass.
	s = base()
	s.Services[0].Photos = nil
	err := ValidateSubmission(Submission{Kind: SubmissionExit, Sector: s})
	if err == nil || !strings.Contains(err.Error(), "Solda") {
		t.Errorf("expected after-photo error naming Solda, got %v", err)
	}
	s.Services[0].Photos = []models.PhotoView{{URL: "http://x/a2.jpg", Type: models.PhotoTypeAfter}}
	if err := ValidateSubmission(Submission{Kind: SubmissionExit, Sector: s}); err != nil {
		t.Errorf("expected pass after adding after photo, got %v", err)
	}

	// Services not marked completed need no after photo.
	s = base()
	s.Services[0].Completed = false
	s.Services[0].Photos = nil
	if err := ValidateSubmission(Submission{Kind: SubmissionExit, Sector: s}); err != nil {
		t.Errorf("incomplete service should not require after photo, got %v", err)
	}
}

func TestValidateSubmission_ScrapValidate(t *testing.T) {
	s := &models.SectorView{TagNumber: "T-100"}
	if err := ValidateSubmission(Submission{Kind: SubmissionScrapValidate, Sector: s}); !errors.Is(err, ErrReturnInvoiceRequired) {
		t.Errorf("expected ErrReturnInvoiceRequired, got %v", err)
	}

	s.ScrapReturnInvoice = "NF-DEV-1"
	if err := ValidateSubmission(Submission{Kind: SubmissionScrapValidate, Sector: s}); err != nil {
		t.Errorf("valid scrap validation rejected: %v", err)
	}
}

func TestValidateSubmission_UnknownKind(t *testing.T) {
	err := ValidateSubmission(Submission{Kind: "bogus", Sector: &models.SectorView{}})
	if err == nil {
		t.Error("expected error for unknown submission kind")
	}
}
