package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

var (
	// ErrConverterUnavailable means the external tool is not installed.
	ErrConverterUnavailable = errors.New("converter unavailable")
	// ErrNotPDF is returned when the input of a PDF conversion is not a PDF.
	ErrNotPDF = errors.New("input is not a pdf")
)

// Converter rasterizes the first page of a PDF. Implementations fail closed:
// on error no output is returned.
type Converter interface {
	Convert(ctx context.Context, pdf []byte) ([]byte, error)
}

// Resizer re-encodes a raster image at the given size.
type Resizer interface {
	Resize(ctx context.Context, img []byte, width, height int) ([]byte, error)
}

// Poppler converts PDFs with pdftoppm.
type Poppler struct {
	Path  string
	Scale int
}

// NewPoppler locates pdftoppm. A missing binary is reported as
// ErrConverterUnavailable so callers can fall back to placeholders.
func NewPoppler(path string) (*Poppler, error) {
	if path == "" {
		path = "pdftoppm"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConverterUnavailable, path, err)
	}
	return &Poppler{Path: resolved, Scale: 800}, nil
}

// Convert renders page one as PNG. The caller's context bounds the run.
func (p *Poppler) Convert(ctx context.Context, pdf []byte) ([]byte, error) {
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		return nil, ErrNotPDF
	}

	dir, err := os.MkdirTemp("", "pdf2png-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	outPrefix := filepath.Join(dir, "out")

	args := []string{"-png", "-singlefile", "-f", "1", "-l", "1"}
	if p.Scale > 0 {
		args = append(args, "-scale-to", strconv.Itoa(p.Scale))
	}
	args = append(args, in, outPrefix)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pdftoppm: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	out, err := os.ReadFile(outPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("read pdftoppm output: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pdftoppm produced an empty image")
	}
	return out, nil
}

// Cwebp re-encodes images to WebP with the cwebp tool.
type Cwebp struct {
	Path    string
	Quality int
}

// NewCwebp locates cwebp.
func NewCwebp(path string) (*Cwebp, error) {
	if path == "" {
		path = "cwebp"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConverterUnavailable, path, err)
	}
	return &Cwebp{Path: resolved, Quality: 80}, nil
}

// Resize scales img to fit width x height and encodes it as WebP.
func (c *Cwebp) Resize(ctx context.Context, img []byte, width, height int) ([]byte, error) {
	dir, err := os.MkdirTemp("", "cwebp-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in")
	out := filepath.Join(dir, "out.webp")
	if err := os.WriteFile(in, img, 0o600); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path,
		"-quiet",
		"-q", strconv.Itoa(c.Quality),
		"-resize", strconv.Itoa(width), strconv.Itoa(height),
		in, "-o", out,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("cwebp: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return os.ReadFile(out)
}
