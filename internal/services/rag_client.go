package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HistoryEntry is one prior turn in the role-tagged form the RAG server
// expects ("user" or "assistant").
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryParams are the fixed generation parameters sent with every query.
type QueryParams struct {
	Mode             string
	ResponseType     string
	TopK             int
	MaxTokenTextUnit int
	MaxTokenGlobal   int
	MaxTokenLocal    int
}

// DefaultQueryParams returns the generation parameters used when none are
// configured.
func DefaultQueryParams() QueryParams {
	return QueryParams{
		Mode:             "hybrid",
		ResponseType:     "Multiple Paragraphs",
		TopK:             20,
		MaxTokenTextUnit: 4000,
		MaxTokenGlobal:   4000,
		MaxTokenLocal:    4000,
	}
}

// RAGClient wraps the remote RAG server's HTTP API. Every method is a single
// outbound call with a bounded timeout and no retries; failures propagate
// as-is for the orchestrators to classify.
type RAGClient struct {
	baseURL       string
	apiKey        string
	publicBaseURL string

	client       *http.Client // query, upload, text insert, scan
	statusClient *http.Client // pipeline status
	healthClient *http.Client // health probe
}

func NewRAGClient(baseURL, apiKey, publicBaseURL string) *RAGClient {
	return &RAGClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Minute, // indexing and generation are slow
		},
		statusClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		healthClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// endpoint builds the request URL. The key rides along as a query parameter
// in addition to the Authorization header; the RAG server historically
// accepted either.
func (c *RAGClient) endpoint(path string) string {
	u := c.baseURL + path
	if c.apiKey != "" {
		u += "?" + url.Values{"api_key_header_value": {c.apiKey}}.Encode()
	}
	return u
}

func (c *RAGClient) setHeaders(req *http.Request, contentType string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// referencesPrompt instructs the RAG server to close every answer with a
// References section whose entries link back to this backend's document
// passthrough.
func (c *RAGClient) referencesPrompt() string {
	return fmt.Sprintf(`At the end of the response, always include a section titled exactly "References", regardless of the language of the main response. Do not translate or change this heading. It must always appear as "References" in English.

Format each reference in **Markdown link format**, using the following structure:
[KG/DC/KG+DC] [file_name](%s/api/documents/file_name)
`, c.publicBaseURL)
}

// Query sends a chat query with optional conversation history and returns
// the generated response text.
func (c *RAGClient) Query(query string, history []HistoryEntry, params QueryParams) (string, error) {
	payload := map[string]interface{}{
		"query":                        query,
		"mode":                         params.Mode,
		"user_prompt":                  c.referencesPrompt(),
		"response_type":                params.ResponseType,
		"top_k":                        params.TopK,
		"max_token_for_text_unit":      params.MaxTokenTextUnit,
		"max_token_for_global_context": params.MaxTokenGlobal,
		"max_token_for_local_context":  params.MaxTokenLocal,
	}
	if len(history) > 0 {
		payload["conversation_history"] = history
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, c.endpoint("/query"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.setHeaders(req, "application/json")

	slog.Info("Sending query to RAG server", "chars", len(query))
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("RAG query returned status %d", resp.StatusCode)
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("malformed RAG query response: %w", err)
	}
	return result.Response, nil
}

// UploadStatus is the RAG server's acknowledgement of an ingestion request.
type UploadStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UploadDocument forwards file bytes to the RAG server for indexing.
func (c *RAGClient) UploadDocument(content []byte, filename string) (*UploadStatus, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint("/documents/upload"), &buf)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, writer.FormDataContentType())

	slog.Info("Uploading document to RAG server", "filename", filename, "bytes", len(content))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RAG upload returned status %d", resp.StatusCode)
	}

	status := &UploadStatus{Status: "success", Message: "Upload completed"}
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("malformed RAG upload response: %w", err)
	}
	return status, nil
}

// InsertText inserts raw text into the RAG system, optionally tagged with a
// source identifier.
func (c *RAGClient) InsertText(text, fileSource string) (*UploadStatus, error) {
	payload := map[string]string{"text": text}
	if fileSource != "" {
		payload["file_source"] = fileSource
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, c.endpoint("/documents/text"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "application/json")

	slog.Info("Inserting text into RAG server", "chars", len(text))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RAG text insert returned status %d", resp.StatusCode)
	}

	status := &UploadStatus{Status: "success", Message: "Text inserted successfully"}
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("malformed RAG text insert response: %w", err)
	}
	return status, nil
}

// ScanDocuments asks the RAG server to scan its input directory for new
// documents.
func (c *RAGClient) ScanDocuments() (map[string]interface{}, error) {
	req, err := http.NewRequest(http.MethodPost, c.endpoint("/documents/scan"), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "application/json")

	return c.doJSON(c.client, req)
}

// PipelineStatus returns the RAG server's document-processing pipeline state.
func (c *RAGClient) PipelineStatus() (map[string]interface{}, error) {
	req, err := http.NewRequest(http.MethodGet, c.endpoint("/documents/pipeline_status"), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "")

	return c.doJSON(c.statusClient, req)
}

// HealthCheck probes the RAG server's health endpoint.
func (c *RAGClient) HealthCheck() (map[string]interface{}, error) {
	req, err := http.NewRequest(http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, "")

	return c.doJSON(c.healthClient, req)
}

func (c *RAGClient) doJSON(client *http.Client, req *http.Request) (map[string]interface{}, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("RAG server returned status %d for %s", resp.StatusCode, req.URL.Path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("malformed RAG server response: %w", err)
	}
	return result, nil
}
