package models

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("onnx bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	if err := downloadFile(srv.URL, dest); err != nil {
		t.Fatalf("downloadFile() error = %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading downloaded file: %v", err)
	}
	if string(data) != "onnx bytes" {
		t.Errorf("downloaded content = %q, want %q", data, "onnx bytes")
	}

	// No temp file left behind.
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present after download")
	}
}

func TestDownloadFileSkipsExisting(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Write([]byte("replacement"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(dest, []byte("original"), 0644); err != nil {
		t.Fatalf("writing existing file: %v", err)
	}

	if err := downloadFile(srv.URL, dest); err != nil {
		t.Fatalf("downloadFile() error = %v", err)
	}
	if hits != 0 {
		t.Errorf("server hit %d times for an existing file, want 0", hits)
	}

	data, _ := os.ReadFile(dest)
	if string(data) != "original" {
		t.Errorf("existing file content = %q, want untouched %q", data, "original")
	}
}

func TestDownloadFileHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	if err := downloadFile(srv.URL, dest); err == nil {
		t.Error("downloadFile() should fail on HTTP 404")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination should not exist after failed download")
	}
}

func TestProgressWriterPassthrough(t *testing.T) {
	var buf bytes.Buffer
	pw := &progressWriter{writer: &buf, total: 8, label: "model.onnx"}

	n, err := pw.Write([]byte("abcd"))
	if err != nil || n != 4 {
		t.Fatalf("Write() = (%d, %v), want (4, nil)", n, err)
	}
	n, err = pw.Write([]byte("efgh"))
	if err != nil || n != 4 {
		t.Fatalf("Write() = (%d, %v), want (4, nil)", n, err)
	}

	if buf.String() != "abcdefgh" {
		t.Errorf("written = %q, want %q", buf.String(), "abcdefgh")
	}
	if pw.written != 8 {
		t.Errorf("written counter = %d, want 8", pw.written)
	}
}
