package barcode

import (
	"fmt"
	"image"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	"go.uber.org/zap"
)

// renderDPI matches the 1.5x raster scale the codes were tuned
// against (72dpi base).
const renderDPI = 108

// Code is one decoded 2D matrix code with its source page (0-based).
type Code struct {
	Page int
	Raw  string
}

// Result reports one extraction attempt. Success=true with an empty
// Codes slice is the normal outcome for pages without readable codes,
// including deadline expiry; Success=false covers real failures
// (corrupt PDF, render errors) and is still non-fatal to the caller.
type Result struct {
	Success    bool
	Err        string
	Codes      []Code
	SubjectIDs []string
	TenantHint string
	Fields     Fields
}

// PageSubject is the per-page decode used by the segmenter. SubjectID
// is empty when the page carries no readable code.
type PageSubject struct {
	Page       int
	SubjectID  string
	TenantHint string
}

type Extractor struct {
	log *zap.Logger
}

func NewExtractor(log *zap.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract renders up to maxPages pages and decodes any 2D matrix
// codes present, bounded by a wall-clock deadline. On expiry the
// extraction reports success with no codes: an unreadable page is
// common and must not fail the pipeline. The render cannot be
// interrupted mid-call, so the abandoned goroutine finishes in the
// background and its result is discarded.
func (e *Extractor) Extract(pdf []byte, maxPages int, timeout time.Duration) Result {
	if maxPages <= 0 {
		maxPages = 1
	}

	done := make(chan Result, 1)
	go func() {
		done <- e.extract(pdf, maxPages)
	}()

	select {
	case res := <-done:
		return res
	case <-time.After(timeout):
		e.log.Warn("Code extraction timed out", zap.Duration("timeout", timeout))
		return Result{Success: true, Err: "timeout"}
	}
}

func (e *Extractor) extract(pdf []byte, maxPages int) Result {
	res := Result{}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		res.Err = fmt.Sprintf("open pdf: %v", err)
		return res
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > maxPages {
		pages = maxPages
	}

	for page := 0; page < pages; page++ {
		raw, err := e.decodePage(doc, page)
		if err != nil {
			e.log.Debug("Page decode failed", zap.Int("page", page), zap.Error(err))
			continue
		}
		if raw == "" {
			continue
		}
		res.Codes = append(res.Codes, Code{Page: page, Raw: raw})

		if id := ParseSubjectID(raw); id != "" && !contains(res.SubjectIDs, id) {
			res.SubjectIDs = append(res.SubjectIDs, id)
		}
		if fields := ParseFields(raw); !fields.Empty() {
			res.Fields = fields
			if res.TenantHint == "" {
				res.TenantHint = fields.TenantHint
			}
		}

		// One subject is enough for single-document routing.
		if len(res.SubjectIDs) > 0 {
			break
		}
	}

	res.Success = true
	return res
}

// PageSubjects decodes every page of a PDF and returns the subject id
// found on each, in page order. Pages that fail to render or decode
// yield an empty id rather than an error.
func (e *Extractor) PageSubjects(pdf []byte) ([]PageSubject, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	subjects := make([]PageSubject, 0, doc.NumPage())
	for page := 0; page < doc.NumPage(); page++ {
		ps := PageSubject{Page: page}
		raw, err := e.decodePage(doc, page)
		if err != nil {
			e.log.Debug("Page scan failed", zap.Int("page", page), zap.Error(err))
		} else if raw != "" {
			ps.SubjectID = ParseSubjectID(raw)
			ps.TenantHint = ParseFields(raw).TenantHint
		}
		subjects = append(subjects, ps)
	}
	return subjects, nil
}

func (e *Extractor) decodePage(doc *fitz.Document, page int) (string, error) {
	img, err := doc.ImageDPI(page, renderDPI)
	if err != nil {
		return "", fmt.Errorf("failed to render page %d: %w", page, err)
	}
	return decodeImage(img)
}

var decodeHints = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

// decodeImage looks for a Data Matrix code in a rendered page. A
// NotFoundException is returned as ("", nil): no code is a normal
// page state.
func decodeImage(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("failed to build bitmap: %w", err)
	}
	result, err := datamatrix.NewDataMatrixReader().Decode(bmp, decodeHints)
	if err != nil {
		// gozxing reports an absent code as an error; either way
		// the page simply has no readable code.
		return "", nil
	}
	return result.GetText(), nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
