package services

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extensions accepted for document upload.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".doc":  true,
	".docx": true,
	".md":   true,
	".rtf":  true,
	".csv":  true,
	".xlsx": true,
	".xls":  true,
	".ppt":  true,
	".pptx": true,
}

// MIME types accepted when the client declares one.
var allowedMIMETypes = map[string]bool{
	"application/pdf":               true,
	"text/plain":                    true,
	"text/markdown":                 true,
	"text/csv":                      true,
	"application/msword":            true,
	"application/vnd.ms-excel":      true,
	"application/vnd.ms-powerpoint": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
}

// ragIngester is the slice of the RAG client the document flow needs.
type ragIngester interface {
	UploadDocument(content []byte, filename string) (*UploadStatus, error)
	InsertText(text, fileSource string) (*UploadStatus, error)
}

// DocumentService validates and locally persists uploaded files, forwards
// them to the RAG server for indexing, and rolls the local copy back when
// the forward fails.
type DocumentService struct {
	rag         ragIngester
	dir         string
	maxFileSize int64
}

func NewDocumentService(rag ragIngester, documentsDir string, maxFileSize int64) *DocumentService {
	return &DocumentService{
		rag:         rag,
		dir:         documentsDir,
		maxFileSize: maxFileSize,
	}
}

// UploadResult reports a completed ingestion. Filename is the derived unique
// name callers need to later retrieve the stored document.
type UploadResult struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
}

func (s *DocumentService) validate(filename, contentType string, size int64) error {
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d: %w", size, s.maxFileSize, ErrInvalidInput)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("file type %q not allowed: %w", ext, ErrInvalidInput)
	}

	if contentType != "" {
		// Strip any parameters like "; charset=utf-8"
		mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
		if !allowedMIMETypes[mediaType] {
			return fmt.Errorf("MIME type %q not allowed: %w", mediaType, ErrInvalidInput)
		}
	}
	return nil
}

// uniqueName keeps the human-readable stem and extension and appends a short
// random suffix to avoid collisions.
func uniqueName(filename string) string {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_%s%s", stem, uuid.NewString()[:8], ext)
}

// Ingest validates the file, saves it under a derived unique name, and
// forwards the bytes to the RAG server. A failed forward deletes the local
// copy before reporting the RAG server unavailable.
func (s *DocumentService) Ingest(filename, contentType string, content []byte) (*UploadResult, error) {
	if err := s.validate(filename, contentType, int64(len(content))); err != nil {
		return nil, err
	}

	derived := uniqueName(filename)
	localPath := filepath.Join(s.dir, derived)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	if err := os.WriteFile(localPath, content, 0o644); err != nil {
		return nil, fmt.Errorf("save document locally: %w", err)
	}
	slog.Info("Document saved locally", "path", localPath)

	if _, err := s.rag.UploadDocument(content, derived); err != nil {
		slog.Error("RAG upload failed, removing local copy", "filename", derived, "error", err)
		if rmErr := os.Remove(localPath); rmErr != nil {
			slog.Warn("Failed to remove local copy", "path", localPath, "error", rmErr)
		}
		return nil, fmt.Errorf("rag upload: %w", ErrUnavailable)
	}

	return &UploadResult{
		Status:   "success",
		Message:  fmt.Sprintf("File '%s' uploaded successfully and sent to RAG system", derived),
		Filename: derived,
		FileSize: int64(len(content)),
	}, nil
}

// InsertText forwards raw text to the RAG server for indexing.
func (s *DocumentService) InsertText(text, fileSource string) (*UploadResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text must not be empty: %w", ErrInvalidInput)
	}

	status, err := s.rag.InsertText(text, fileSource)
	if err != nil {
		slog.Error("RAG text insert failed", "error", err)
		return nil, fmt.Errorf("rag text insert: %w", ErrUnavailable)
	}

	return &UploadResult{
		Status:   status.Status,
		Message:  status.Message,
		FileSize: int64(len(text)),
	}, nil
}

// DocumentInfo describes one locally stored document.
type DocumentInfo struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	URL      string    `json:"url"`
}

// List returns the locally stored documents, sorted by filename.
func (s *DocumentService) List() ([]DocumentInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DocumentInfo{}, nil
		}
		return nil, err
	}

	docs := make([]DocumentInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		docs = append(docs, DocumentInfo{
			Filename: entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
			URL:      "/api/documents/" + entry.Name(),
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	return docs, nil
}

// Resolve maps a requested filename to its on-disk path, rejecting anything
// that escapes the documents directory.
func (s *DocumentService) Resolve(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid document name: %w", ErrInvalidInput)
	}

	path := filepath.Join(s.dir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("document %q: %w", filename, ErrNotFound)
	}
	return path, nil
}
