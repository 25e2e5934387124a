// Package models locates and downloads speech-recognition models.
package models

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrophi/voicejournal/internal/config"
)

const (
	// DefaultVoskModel is the small English model: fast enough for
	// interactive journaling on modest hardware.
	DefaultVoskModel = "vosk-model-small-en-us-0.15"
	voskModelURL     = "https://alphacephei.com/vosk/models/" + DefaultVoskModel + ".zip"
)

// Dir returns the models directory under the data dir.
func Dir() string {
	return filepath.Join(config.DefaultDataDir(), "models")
}

// VoskModelPath returns where the default Vosk model lives once downloaded.
func VoskModelPath() string {
	return filepath.Join(Dir(), DefaultVoskModel)
}

// DownloadVosk fetches and unpacks the default Vosk model, printing progress
// to stdout. Already-downloaded models are left alone.
func DownloadVosk() error {
	modelsDir := Dir()
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	destDir := VoskModelPath()
	if info, err := os.Stat(destDir); err == nil && info.IsDir() {
		fmt.Printf("  Vosk model already exists: %s\n", destDir)
		return nil
	}

	fmt.Printf("  Downloading %s...\n", DefaultVoskModel)
	fmt.Printf("  URL: %s\n", voskModelURL)

	resp, err := http.Get(voskModelURL) //nolint:gosec // URL is a compile-time constant
	if err != nil {
		return fmt.Errorf("downloading vosk model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	// Write to a temp zip first, then extract and remove it.
	zipPath := destDir + ".zip.tmp"
	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	pr := &progressWriter{writer: f, total: resp.ContentLength, label: DefaultVoskModel}
	_, err = io.Copy(pr, resp.Body)
	f.Close()
	fmt.Println()
	if err != nil {
		os.Remove(zipPath)
		return fmt.Errorf("writing model archive: %w", err)
	}

	if err := unzip(zipPath, modelsDir); err != nil {
		os.Remove(zipPath)
		return fmt.Errorf("extracting model: %w", err)
	}
	os.Remove(zipPath)

	fmt.Printf("  Model ready: %s\n", destDir)
	return nil
}

// unzip extracts an archive into destDir, rejecting entries that escape it.
func unzip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer r.Close()

	for _, file := range r.File {
		path := filepath.Join(destDir, file.Name)
		if !strings.HasPrefix(path, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", file.Name)
		}

		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		src, err := file.Open()
		if err != nil {
			return err
		}
		dst, err := os.Create(path)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		dst.Close()
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// progressWriter prints a single-line download progress indicator.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	label   string
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.writer.Write(b)
	p.written += int64(n)
	if p.total > 0 {
		fmt.Printf("\r  %s: %.0f%% (%.1f MB)", p.label,
			float64(p.written)/float64(p.total)*100,
			float64(p.written)/(1024*1024))
	} else {
		fmt.Printf("\r  %s: %.1f MB", p.label, float64(p.written)/(1024*1024))
	}
	return n, err
}
