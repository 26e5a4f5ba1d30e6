package services

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIngester records forwarded uploads and text inserts.
type fakeIngester struct {
	err         error
	uploads     int
	inserts     int
	gotFilename string
	gotContent  []byte
	gotText     string
	gotSource   string
}

func (f *fakeIngester) UploadDocument(content []byte, filename string) (*UploadStatus, error) {
	f.uploads++
	f.gotFilename = filename
	f.gotContent = content
	if f.err != nil {
		return nil, f.err
	}
	return &UploadStatus{Status: "success", Message: "Upload completed"}, nil
}

func (f *fakeIngester) InsertText(text, fileSource string) (*UploadStatus, error) {
	f.inserts++
	f.gotText = text
	f.gotSource = fileSource
	if f.err != nil {
		return nil, f.err
	}
	return &UploadStatus{Status: "success", Message: "Text inserted successfully"}, nil
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestIngestSuccess(t *testing.T) {
	dir := t.TempDir()
	rag := &fakeIngester{}
	svc := NewDocumentService(rag, dir, 1<<20)

	content := []byte("# notes\n\nsome markdown")
	result, err := svc.Ingest("meeting notes.md", "text/markdown", content)
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.EqualValues(t, len(content), result.FileSize)
	assert.True(t, strings.HasPrefix(result.Filename, "meeting notes_"), "derived name %q keeps the stem", result.Filename)
	assert.True(t, strings.HasSuffix(result.Filename, ".md"), "derived name %q keeps the extension", result.Filename)
	assert.NotEqual(t, "meeting notes.md", result.Filename)

	// Saved locally under the derived name and forwarded with it
	saved, err := os.ReadFile(filepath.Join(dir, result.Filename))
	require.NoError(t, err)
	assert.Equal(t, content, saved)
	assert.Equal(t, 1, rag.uploads)
	assert.Equal(t, result.Filename, rag.gotFilename)
	assert.Equal(t, content, rag.gotContent)
}

func TestIngestRejectsDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	rag := &fakeIngester{}
	svc := NewDocumentService(rag, dir, 1<<20)

	_, err := svc.Ingest("malware.exe", "", []byte("MZ"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	// No local write, no remote call
	assert.Empty(t, dirEntries(t, dir))
	assert.Zero(t, rag.uploads)
}

func TestIngestRejectsDisallowedMIMEType(t *testing.T) {
	dir := t.TempDir()
	rag := &fakeIngester{}
	svc := NewDocumentService(rag, dir, 1<<20)

	_, err := svc.Ingest("page.txt", "text/html", []byte("<html>"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, dirEntries(t, dir))
	assert.Zero(t, rag.uploads)
}

func TestIngestRejectsOversizeFile(t *testing.T) {
	dir := t.TempDir()
	rag := &fakeIngester{}
	svc := NewDocumentService(rag, dir, 10)

	_, err := svc.Ingest("big.txt", "text/plain", []byte("this is more than ten bytes"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, dirEntries(t, dir))
	assert.Zero(t, rag.uploads)
}

func TestIngestRemoteFailureRemovesLocalFile(t *testing.T) {
	dir := t.TempDir()
	rag := &fakeIngester{err: errors.New("connection refused")}
	svc := NewDocumentService(rag, dir, 1<<20)

	_, err := svc.Ingest("report.pdf", "application/pdf", []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, ErrUnavailable)

	// The compensating delete ran
	assert.Empty(t, dirEntries(t, dir))
	assert.Equal(t, 1, rag.uploads)
}

func TestInsertText(t *testing.T) {
	rag := &fakeIngester{}
	svc := NewDocumentService(rag, t.TempDir(), 1<<20)

	result, err := svc.InsertText("some knowledge", "wiki")
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "some knowledge", rag.gotText)
	assert.Equal(t, "wiki", rag.gotSource)

	_, err = svc.InsertText("   ", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	rag.err = errors.New("boom")
	_, err = svc.InsertText("more knowledge", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestListDocuments(t *testing.T) {
	dir := t.TempDir()
	svc := NewDocumentService(&fakeIngester{}, dir, 1<<20)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bb"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("aaa"), 0o644))

	docs, err := svc.List()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.pdf", docs[0].Filename)
	assert.EqualValues(t, 3, docs[0].Size)
	assert.Equal(t, "/api/documents/a.pdf", docs[0].URL)
	assert.Equal(t, "b.txt", docs[1].Filename)
}

func TestListDocumentsMissingDir(t *testing.T) {
	svc := NewDocumentService(&fakeIngester{}, filepath.Join(t.TempDir(), "nope"), 1<<20)

	docs, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	svc := NewDocumentService(&fakeIngester{}, dir, 1<<20)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("hi"), 0o644))

	path, err := svc.Resolve("doc.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc.txt"), path)

	_, err = svc.Resolve("missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"", "../secret", "a/b.txt", "..", "x/../../etc/passwd"} {
		_, err := svc.Resolve(name)
		assert.ErrorIs(t, err, ErrInvalidInput, "name %q must be rejected", name)
	}
}
