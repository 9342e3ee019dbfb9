package config

import (
	"log"

	"p9e.in/recup/models"
)

// SeedServiceTypes inserts the repair-service catalog. Safe to run on every
// start; existing entries are left untouched.
func SeedServiceTypes() {
	serviceTypes := []models.ServiceType{
		{ID: "limpeza", Name: "Limpeza", Description: "Limpeza completa do setor"},
		{ID: "troca_tela", Name: "Troca de Tela", Description: "Substituição da tela danificada"},
		{ID: "troca_ferragem", Name: "Troca de Ferragem", Description: "Substituição de ferragens comprometidas"},
		{ID: "solda", Name: "Solda", Description: "Reparos estruturais por solda"},
		{ID: "pintura", Name: "Pintura", Description: "Pintura e acabamento"},
		{ID: "troca_borracha", Name: "Troca de Borracha", Description: "Substituição das borrachas de vedação"},
	}

	for _, st := range serviceTypes {
		result := DB.Where("id = ?", st.ID).FirstOrCreate(&st)
		if result.Error != nil {
			log.Printf("⚠️  Falha ao semear tipo de serviço %s: %v", st.ID, result.Error)
		}
	}
	log.Println("✅ Catálogo de tipos de serviço semeado")
}
