package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
)

const uploadDir = "./uploads" // Local directory for development storage

// PhotoUploader accepts a file and returns a stable, dereferenceable URL.
type PhotoUploader interface {
	Upload(ctx context.Context, content io.Reader, folder, name string) (string, error)
}

// GCSUploader stores photos in a Google Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
}

func NewGCSUploader(ctx context.Context, bucket string) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao GCS: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, content io.Reader, folder, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	object := fmt.Sprintf("%s/%s-%s", folder, time.Now().Format("20060102-150405"), name)
	w := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, content); err != nil {
		w.Close()
		return "", fmt.Errorf("falha ao gravar objeto %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("falha ao finalizar objeto %s: %w", object, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.bucket, object), nil
}

// LocalUploader stores photos on the local filesystem for development.
type LocalUploader struct {
	dir string
}

func NewLocalUploader(dir string) *LocalUploader {
	if dir == "" {
		dir = uploadDir
	}
	return &LocalUploader{dir: dir}
}

func (u *LocalUploader) Upload(ctx context.Context, content io.Reader, folder, name string) (string, error) {
	dir := filepath.Join(u.dir, folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("falha ao criar diretório de upload: %w", err)
	}
	filename := fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), name)
	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("falha ao criar arquivo: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, content); err != nil {
		return "", fmt.Errorf("falha ao salvar arquivo: %w", err)
	}
	return fmt.Sprintf("/uploads/%s/%s", folder, filename), nil
}

// NewPhotoUploader picks the storage backend from the environment: GCS in
// production (Cloud Run sets K_SERVICE), local disk in development.
func NewPhotoUploader(ctx context.Context) (PhotoUploader, error) {
	useGCS := os.Getenv("USE_GCS") == "true" ||
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" ||
		os.Getenv("K_SERVICE") != ""

	if useGCS {
		bucket := os.Getenv("GCS_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET não configurado")
		}
		return NewGCSUploader(ctx, bucket)
	}
	return NewLocalUploader(""), nil
}

// UploadPhotoHandler receives a multipart photo, stores it through the
// configured backend and returns its URL.
func UploadPhotoHandler(uploader PhotoUploader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Parse the multipart form (max 50MB)
		if err := r.ParseMultipartForm(50 << 20); err != nil {
			http.Error(w, "bad multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file field: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		folder := r.FormValue("folder")
		if folder == "" {
			folder = "geral"
		}

		url, err := uploader.Upload(r.Context(), file, folder, header.Filename)
		if err != nil {
			http.Error(w, "failed to save file: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"url":      url,
			"filename": header.Filename,
		})
	}
}
