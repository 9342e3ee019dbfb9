package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"p9e.in/recup/handlers"
	"p9e.in/recup/middleware"
)

// RegisterRoutes wires the recovery-lifecycle API with the given upload
// backend.
func RegisterRoutes(uploader handlers.PhotoUploader) http.Handler {
	handlers.SetPhotoUploader(uploader)

	r := mux.NewRouter()

	// Public routes (no authentication required)
	r.HandleFunc("/api/v1/register", handlers.Register).Methods("POST")
	r.HandleFunc("/api/v1/login", handlers.Login).Methods("POST")
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir("./uploads"))),
	)

	// Protected API routes (require authentication)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.JWTMiddleware)

	// Sector lifecycle
	api.HandleFunc("/sectors", handlers.GetAllSectors).Methods("GET")
	api.HandleFunc("/sectors/tag/{tag}", handlers.GetSectorsByTag).Methods("GET")
	api.HandleFunc("/sectors/peritagem", handlers.SubmitPeritagem).Methods("POST")
	api.HandleFunc("/sectors/{id}", handlers.GetSector).Methods("GET")
	api.HandleFunc("/sectors/{id}/checagem", handlers.SubmitChecagem).Methods("PUT")
	api.HandleFunc("/sectors/{id}/scrap", handlers.SubmitScrap).Methods("POST")
	api.HandleFunc("/sectors/{id}/scrap/validate", handlers.ValidateScrap).Methods("POST")
	api.Handle("/sectors/{id}", middleware.RequireRole([]string{"admin"},
		http.HandlerFunc(handlers.DeleteSector))).Methods("DELETE")

	// Catalog and uploads
	api.HandleFunc("/service-types", handlers.GetServiceTypes).Methods("GET")
	api.HandleFunc("/upload", handlers.UploadPhotoHandler(uploader)).Methods("POST")

	return r
}
