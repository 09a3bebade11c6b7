// Package models downloads the acoustic model artifacts: the ONNX model
// and the tokenizer vocabulary JSON.
package models

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const (
	modelURL  = "https://huggingface.co/openvitals/vitalscribe-ctc/resolve/main/ctc_model.onnx"
	modelName = "ctc_model.onnx"
	vocabURL  = "https://huggingface.co/openvitals/vitalscribe-ctc/resolve/main/tokenizer.json"
	vocabName = "tokenizer.json"
)

// Download fetches the model and vocabulary into dir, skipping files that
// already exist. It shows download progress to stdout.
func Download(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	if err := downloadFile(modelURL, filepath.Join(dir, modelName)); err != nil {
		return fmt.Errorf("model download failed: %w", err)
	}
	if err := downloadFile(vocabURL, filepath.Join(dir, vocabName)); err != nil {
		return fmt.Errorf("vocabulary download failed: %w", err)
	}

	fmt.Printf("  Model artifacts installed in %s\n", dir)
	return nil
}

// downloadFile fetches url into destPath via a temp file and atomic rename.
func downloadFile(url, destPath string) error {
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Printf("  %s already exists (%.1f MB)\n", destPath, float64(info.Size())/(1024*1024))
		return nil
	}

	fmt.Printf("  Downloading %s\n", url)
	fmt.Printf("  Destination: %s\n", destPath)

	resp, err := http.Get(url) //nolint:gosec // URL is a compile-time constant
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	pw := &progressWriter{
		writer: f,
		total:  resp.ContentLength,
		label:  filepath.Base(destPath),
	}

	written, err := io.Copy(pw, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}

	fmt.Printf("\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving file: %w", err)
	}

	return nil
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Printf("\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Printf("\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}
