package handlers

import (
	"time"

	"p9e.in/recup/models"
)

// PrepareSectorData assembles a write-ready view before persistence: the flat
// photo list is partitioned by type, newly processed scrap photos are merged
// with the ones already attached (previously validated scrap photos must not
// be dropped), every service carries a non-nil photo list, and the cycle
// count is carried forward on edits or taken from the caller-supplied
// candidate on creation.
func PrepareSectorData(
	data *models.SectorView,
	existing *models.SectorView,
	processed []models.PhotoView,
	cycleCountCandidate int,
) *models.SectorView {
	prepared := *data

	var before, after, scrap []models.PhotoView
	for _, p := range processed {
		switch p.Type {
		case models.PhotoTypeBefore:
			before = append(before, p)
		case models.PhotoTypeAfter:
			after = append(after, p)
		case models.PhotoTypeScrap:
			scrap = append(scrap, p)
		case models.PhotoTypeTag:
			if prepared.TagPhotoURL == "" {
				prepared.TagPhotoURL = p.URL
			}
		}
	}

	prepared.BeforePhotos = append(append([]models.PhotoView{}, data.BeforePhotos...), before...)
	prepared.AfterPhotos = append(append([]models.PhotoView{}, data.AfterPhotos...), after...)

	prepared.ScrapPhotos = append([]models.PhotoView{}, scrap...)
	if existing != nil {
		prepared.ScrapPhotos = mergePhotos(existing.ScrapPhotos, prepared.ScrapPhotos)
	}
	if len(data.ScrapPhotos) > 0 {
		prepared.ScrapPhotos = mergePhotos(data.ScrapPhotos, prepared.ScrapPhotos)
	}

	services := make([]models.ServiceView, len(data.Services))
	copy(services, data.Services)
	for i := range services {
		if services[i].Photos == nil {
			services[i].Photos = []models.PhotoView{}
		}
	}
	prepared.Services = services

	if existing != nil {
		prepared.CycleCount = existing.CycleCount
	} else {
		prepared.CycleCount = cycleCountCandidate
	}
	if prepared.CycleCount <= 0 {
		prepared.CycleCount = 1
	}

	prepared.UpdatedAt = time.Now()
	return &prepared
}

// mergePhotos unions two photo lists by URL, keeping the order of base and
// appending extras not yet present.
func mergePhotos(base, extra []models.PhotoView) []models.PhotoView {
	out := append([]models.PhotoView{}, base...)
	seen := make(map[string]bool, len(base))
	for _, p := range base {
		seen[p.URL] = true
	}
	for _, p := range extra {
		if p.URL == "" || seen[p.URL] {
			continue
		}
		seen[p.URL] = true
		out = append(out, p)
	}
	return out
}
