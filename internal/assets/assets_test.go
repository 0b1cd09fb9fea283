package assets_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/festival-radar/backend/internal/assets"
	"github.com/DeafMist/festival-radar/backend/internal/models"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

type fakeFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	calls map[string]int
}

func newFakeFetcher(files map[string][]byte) *fakeFetcher {
	return &fakeFetcher{files: files, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("download: unexpected status 404 Not Found")
	}
	return data, nil
}

type convertFunc func(ctx context.Context, pdf []byte) ([]byte, error)

func (f convertFunc) Convert(ctx context.Context, pdf []byte) ([]byte, error) { return f(ctx, pdf) }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	data, err := assets.Placeholder(models.TypeStand, 8, 8)
	require.NoError(t, err)
	return data
}

func newResolver(t *testing.T, f assets.Fetcher, c assets.Converter) *assets.Resolver {
	t.Helper()
	r, err := assets.NewResolver(assets.Options{
		Dir:            filepath.Join(t.TempDir(), "assets"),
		ConvertTimeout: 100 * time.Millisecond,
		Width:          40,
		Height:         40,
	}, f, c, nil)
	require.NoError(t, err)
	return r
}

func TestResolveDownloadsRasterVerbatimAndCaches(t *testing.T) {
	img := pngBytes(t)
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/logo": img})
	r := newResolver(t, fetcher, nil)
	req := assets.Request{Type: models.TypeWorkshop, EventID: "atelier-1", Media: []models.Media{{URL: "https://cdn/logo"}}}

	res := r.Resolve(context.Background(), req)
	require.NoError(t, res.Err)
	require.Equal(t, assets.OutcomeDownloaded, res.Outcome)
	require.Equal(t, filepath.Join(r.Dir(), "workshop-atelier-1.png"), res.Path)

	stored, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, img, stored)

	again := r.Resolve(context.Background(), req)
	require.Equal(t, assets.OutcomeCached, again.Outcome)
	require.Equal(t, res.Path, again.Path)
	require.Equal(t, 1, fetcher.calls["https://cdn/logo"])
}

func TestResolveIsNoopForExistingFileAcrossResolvers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "assets")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stand-stand-4.jpg"), []byte("old"), 0o644))

	fetcher := newFakeFetcher(nil)
	r, err := assets.NewResolver(assets.Options{Dir: dir}, fetcher, nil, nil)
	require.NoError(t, err)

	res := r.Resolve(context.Background(), assets.Request{Type: models.TypeStand, EventID: "stand-4", Media: []models.Media{{URL: "https://cdn/new.jpg"}}})
	require.Equal(t, assets.OutcomeCached, res.Outcome)
	require.Empty(t, fetcher.calls)
}

func TestResolvePDFConversionFailureFallsBackToPlaceholder(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/flyer.pdf": pdfBytes})
	failing := convertFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("malformed pdf")
	})
	r := newResolver(t, fetcher, failing)

	res := r.Resolve(context.Background(), assets.Request{
		Type:    models.TypeConference,
		EventID: "conference-3",
		Media:   []models.Media{{URL: "https://cdn/flyer.pdf", Mimetype: "application/pdf"}},
	})
	require.Equal(t, assets.OutcomePlaceholder, res.Outcome)
	require.NotEmpty(t, res.Path)
	require.FileExists(t, res.Path)

	var rerr *assets.ResolutionError
	require.True(t, errors.As(res.Err, &rerr))
	require.Equal(t, "conference-conference-3", rerr.Key)

	_, cached := os.Stat(filepath.Join(r.Dir(), "conference-conference-3.png"))
	require.True(t, os.IsNotExist(cached), "placeholders are not cached under the event key")
}

func TestResolvePDFWithoutConverter(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/doc.pdf": pdfBytes})
	r := newResolver(t, fetcher, nil)

	res := r.Resolve(context.Background(), assets.Request{Type: models.TypeStand, EventID: "stand-1", Media: []models.Media{{URL: "https://cdn/doc.pdf"}}})
	require.Equal(t, assets.OutcomePlaceholder, res.Outcome)
	require.ErrorIs(t, res.Err, assets.ErrConverterUnavailable)
}

func TestResolvePDFConversionTimesOut(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/slow.pdf": pdfBytes})
	hung := convertFunc(func(ctx context.Context, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := newResolver(t, fetcher, hung)

	start := time.Now()
	res := r.Resolve(context.Background(), assets.Request{Type: models.TypeWorkshop, EventID: "atelier-9", Media: []models.Media{{URL: "https://cdn/slow.pdf"}}})
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, assets.OutcomePlaceholder, res.Outcome)
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestResolvePDFConverted(t *testing.T) {
	img := pngBytes(t)
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/logo.pdf": pdfBytes})
	ok := convertFunc(func(_ context.Context, pdf []byte) ([]byte, error) {
		require.Equal(t, pdfBytes, pdf)
		return img, nil
	})
	r := newResolver(t, fetcher, ok)

	res := r.Resolve(context.Background(), assets.Request{Type: models.TypeStand, EventID: "stand-2", Role: "speaker", Media: []models.Media{{URL: "https://cdn/logo.pdf"}}})
	require.NoError(t, res.Err)
	require.Equal(t, assets.OutcomeConverted, res.Outcome)
	require.Equal(t, filepath.Join(r.Dir(), "speaker-stand-stand-2.png"), res.Path)
}

func TestResolveTriesDescriptorsInOrder(t *testing.T) {
	img := pngBytes(t)
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/second.png": img})
	r := newResolver(t, fetcher, nil)

	res := r.Resolve(context.Background(), assets.Request{Type: models.TypeStand, EventID: "stand-5", Media: []models.Media{
		{URL: "https://cdn/missing.png"},
		{URL: "https://cdn/second.png"},
	}})
	require.NoError(t, res.Err)
	require.Equal(t, assets.OutcomeDownloaded, res.Outcome)
	require.Equal(t, 1, fetcher.calls["https://cdn/missing.png"])
}

func TestResolveSharesFileForSameURL(t *testing.T) {
	img := pngBytes(t)
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/shared.png": img})
	r := newResolver(t, fetcher, nil)
	media := []models.Media{{URL: "https://cdn/shared.png"}}

	first := r.Resolve(context.Background(), assets.Request{Type: models.TypeStand, EventID: "stand-1", Media: media})
	second := r.Resolve(context.Background(), assets.Request{Type: models.TypeStand, EventID: "stand-2", Media: media})
	require.Equal(t, first.Path, second.Path)
	require.Equal(t, assets.OutcomeCached, second.Outcome)
	require.Equal(t, 1, fetcher.calls["https://cdn/shared.png"])
}

type slowFetcher struct {
	*fakeFetcher
	delay time.Duration
}

func (f slowFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	time.Sleep(f.delay)
	return f.fakeFetcher.Fetch(ctx, url)
}

func TestResolveConcurrentSameURLWritesOneFile(t *testing.T) {
	const url = "https://cdn/logo.png"
	fetcher := newFakeFetcher(map[string][]byte{url: pngBytes(t)})
	r := newResolver(t, slowFetcher{fakeFetcher: fetcher, delay: 20 * time.Millisecond}, nil)

	results := make([]assets.Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), assets.Request{
				Type:    models.TypeWorkshop,
				EventID: fmt.Sprintf("atelier-%d", i+1),
				Media:   []models.Media{{URL: url}},
			})
		}()
	}
	wg.Wait()

	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	require.Equal(t, results[0].Path, results[1].Path)
	require.Equal(t, 1, fetcher.calls[url])

	files, err := filepath.Glob(filepath.Join(r.Dir(), "workshop-*"))
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestResolveWithoutMedia(t *testing.T) {
	r := newResolver(t, newFakeFetcher(nil), nil)
	res := r.Resolve(context.Background(), assets.Request{Type: models.TypeStand, EventID: "stand-1"})
	require.Equal(t, assets.OutcomeEmpty, res.Outcome)
	require.Empty(t, res.Path)
	require.NoError(t, res.Err)
}

func TestResolveRejectsNonImageContent(t *testing.T) {
	fetcher := newFakeFetcher(map[string][]byte{"https://cdn/page": []byte("<html><body>login</body></html>")})
	r := newResolver(t, fetcher, nil)

	res := r.Resolve(context.Background(), assets.Request{Type: models.TypeStand, EventID: "stand-8", Media: []models.Media{{URL: "https://cdn/page"}}})
	require.Equal(t, assets.OutcomePlaceholder, res.Outcome)
	require.Error(t, res.Err)
}

func TestPlaceholderIsDeterministicAndColoured(t *testing.T) {
	a, err := assets.Placeholder(models.TypeConference, 400, 400)
	require.NoError(t, err)
	b, err := assets.Placeholder(models.TypeConference, 400, 400)
	require.NoError(t, err)
	require.Equal(t, a, b)

	img, err := png.Decode(bytes.NewReader(a))
	require.NoError(t, err)
	require.Equal(t, 400, img.Bounds().Dx())
	r, g, bl, _ := img.At(0, 0).RGBA()
	require.Equal(t, []uint32{0x3b, 0x82, 0xf6}, []uint32{r >> 8, g >> 8, bl >> 8})

	other, err := assets.Placeholder(models.TypeStand, 400, 400)
	require.NoError(t, err)
	require.NotEqual(t, a, other)
}

func TestNeedsRasterConversion(t *testing.T) {
	require.False(t, assets.NeedsRasterConversion(nil))
	require.False(t, assets.NeedsRasterConversion([][]models.Media{{{URL: "https://cdn/a.png", Mimetype: "image/png"}}}))
	require.True(t, assets.NeedsRasterConversion([][]models.Media{
		{{URL: "https://cdn/a.png"}},
		{{URL: "https://cdn/b", Mimetype: "application/pdf"}},
	}))
	require.True(t, assets.IsPDF(models.Media{URL: "https://cdn/Plaquette.PDF?sig=1"}))
	require.Equal(t, 2, assets.CountPDF([][]models.Media{{{URL: "a.pdf"}, {URL: "b.pdf"}, {URL: "c.jpg"}}}))
}

type fakeResizer struct{ calls int }

func (f *fakeResizer) Resize(_ context.Context, img []byte, w, h int) ([]byte, error) {
	f.calls++
	return []byte(fmt.Sprintf("webp %dx%d", w, h)), nil
}

func TestOptimize(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(src, "stand-stand-1.png"), pngBytes(t), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("not an image"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "placeholders"), 0o755))

	rs := &fakeResizer{}
	rep, err := assets.Optimize(context.Background(), rs, src, dst, 400, 400, nil)
	require.NoError(t, err)
	require.Equal(t, assets.OptimizeReport{Written: 1, Skipped: 1}, rep)

	out, err := os.ReadFile(filepath.Join(dst, "stand-stand-1.webp"))
	require.NoError(t, err)
	require.Equal(t, "webp 400x400", string(out))

	rep, err = assets.Optimize(context.Background(), rs, src, dst, 400, 400, nil)
	require.NoError(t, err)
	require.Equal(t, 2, rep.Skipped)
	require.Equal(t, 1, rs.calls)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok" {
			w.Write([]byte("payload"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := assets.NewHTTPFetcher(srv.Client(), time.Second, 100)
	data, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
}

func TestPopplerErrors(t *testing.T) {
	_, err := assets.NewPoppler(filepath.Join(t.TempDir(), "no-pdftoppm"))
	require.ErrorIs(t, err, assets.ErrConverterUnavailable)

	p := &assets.Poppler{Path: "pdftoppm"}
	_, err = p.Convert(context.Background(), []byte("GIF89a"))
	require.ErrorIs(t, err, assets.ErrNotPDF)
}

func TestWipe(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "assets")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.png"), []byte("x"), 0o644))
	require.NoError(t, assets.Wipe(dir))
	require.NoDirExists(t, dir)
	require.Error(t, assets.Wipe(""))
}
