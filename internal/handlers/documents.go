package handlers

import (
	"io"
	"log/slog"
	"mime"
	"path/filepath"

	"github.com/gofiber/fiber/v2"

	"ragserver/internal/services"
)

type DocumentHandler struct {
	svc *services.DocumentService
	rag *services.RAGClient
}

func NewDocumentHandler(svc *services.DocumentService, rag *services.RAGClient) *DocumentHandler {
	return &DocumentHandler{svc: svc, rag: rag}
}

// Upload ingests a multipart file: validate, persist locally, forward to the
// RAG server.
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "A file is required",
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		slog.Error("Failed to open uploaded file", "filename", fileHeader.Filename, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to read uploaded file",
		})
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Failed to read uploaded file", "filename", fileHeader.Filename, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to read uploaded file",
		})
	}

	result, err := h.svc.Ingest(fileHeader.Filename, fileHeader.Header.Get("Content-Type"), content)
	if err != nil {
		return serviceError(c, err, "document upload failed")
	}

	return c.JSON(result)
}

// InsertText forwards raw text to the RAG server for indexing.
func (h *DocumentHandler) InsertText(c *fiber.Ctx) error {
	var req struct {
		Text       string `json:"text"`
		FileSource string `json:"file_source"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": "Invalid request body",
		})
	}

	result, err := h.svc.InsertText(req.Text, req.FileSource)
	if err != nil {
		return serviceError(c, err, "text insert failed")
	}

	return c.JSON(result)
}

func (h *DocumentHandler) List(c *fiber.Ctx) error {
	docs, err := h.svc.List()
	if err != nil {
		slog.Error("Failed to list documents", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   true,
			"message": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{"documents": docs})
}

// Serve streams a stored document back with its inferred media type.
func (h *DocumentHandler) Serve(c *fiber.Ctx) error {
	filename := c.Params("filename")

	path, err := h.svc.Resolve(filename)
	if err != nil {
		return serviceError(c, err, "document lookup failed")
	}

	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	c.Set(fiber.HeaderContentType, mediaType)
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+filename+`"`)

	return c.SendFile(path)
}

// Scan asks the RAG server to scan its input directory.
func (h *DocumentHandler) Scan(c *fiber.Ctx) error {
	result, err := h.rag.ScanDocuments()
	if err != nil {
		slog.Error("Document scan failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   true,
			"message": "RAG service is currently unavailable. Please try again later.",
		})
	}

	return c.JSON(result)
}

// PipelineStatus proxies the RAG pipeline status.
func (h *DocumentHandler) PipelineStatus(c *fiber.Ctx) error {
	result, err := h.rag.PipelineStatus()
	if err != nil {
		slog.Error("Pipeline status request failed", "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":   true,
			"message": "RAG service is currently unavailable. Please try again later.",
		})
	}

	return c.JSON(result)
}
