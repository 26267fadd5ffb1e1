package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/barcode"
)

// Segment is a contiguous run of pages from one source PDF attributed
// to a single subject, written out as an independent document.
type Segment struct {
	Path       string
	SubjectID  string
	Pages      []int // 0-based, original order
	SourceFile string
	TenantHint string
}

// PageDecoder yields the decoded subject id per page. Satisfied by
// *barcode.Extractor.
type PageDecoder interface {
	PageSubjects(pdf []byte) ([]barcode.PageSubject, error)
}

type Segmenter struct {
	decoder PageDecoder
	log     *zap.Logger
}

func NewSegmenter(decoder PageDecoder, log *zap.Logger) *Segmenter {
	return &Segmenter{decoder: decoder, log: log}
}

// PageCount reports the number of pages without loading page content.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

// Segment partitions a multi-subject PDF into per-subject documents
// under outputDir. Returns nil when the document has one page or
// resolves to fewer than two labeled subjects; single-subject
// documents are never split.
func (s *Segmenter) Segment(pdf []byte, sourceName, outputDir string) ([]Segment, error) {
	pageCount, err := PageCount(pdf)
	if err != nil {
		return nil, err
	}
	if pageCount <= 1 {
		return nil, nil
	}

	subjects, err := s.decoder.PageSubjects(pdf)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(subjects))
	tenantHint := ""
	for i, ps := range subjects {
		ids[i] = ps.SubjectID
		if tenantHint == "" {
			tenantHint = ps.TenantHint
		}
	}

	runs := groupRuns(ids)
	if runs == nil {
		s.log.Info("Single subject, no split needed", zap.String("file", sourceName))
		return nil, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	base := strings.TrimSuffix(sourceName, filepath.Ext(sourceName))
	seen := map[string]int{}
	segments := make([]Segment, 0, len(runs))

	for _, r := range runs {
		subject := r.subjectID
		if subject == "" {
			subject = "UNBEKANNT"
		}
		seen[subject]++

		suffix := ""
		if seen[subject] > 1 {
			suffix = fmt.Sprintf("_%d", seen[subject])
		}
		path := filepath.Join(outputDir, fmt.Sprintf("%s_MA%s%s.pdf", base, subject, suffix))

		if err := writePages(pdf, r.pages, path); err != nil {
			return nil, fmt.Errorf("failed to write segment for subject %s: %w", subject, err)
		}

		segments = append(segments, Segment{
			Path:       path,
			SubjectID:  r.subjectID,
			Pages:      r.pages,
			SourceFile: sourceName,
			TenantHint: tenantHint,
		})
		s.log.Info("Segment written",
			zap.String("file", filepath.Base(path)),
			zap.String("subject", subject),
			zap.Int("pages", len(r.pages)),
		)
	}

	return segments, nil
}

type run struct {
	subjectID string
	pages     []int
}

// groupRuns partitions per-page subject ids into contiguous runs. A
// new run starts when a decoded id differs from the run's carried id;
// a page without an id continues the current run. A leading unlabeled
// run is treated as a cover sheet and merged into its successor.
// Returns nil when fewer than two runs carry a subject id.
func groupRuns(ids []string) []run {
	var runs []run
	current := run{}

	for page, id := range ids {
		if id != "" && id != current.subjectID {
			if len(current.pages) > 0 {
				runs = append(runs, current)
			}
			current = run{subjectID: id, pages: []int{page}}
		} else {
			current.pages = append(current.pages, page)
		}
	}
	if len(current.pages) > 0 {
		runs = append(runs, current)
	}

	labeled := 0
	for _, r := range runs {
		if r.subjectID != "" {
			labeled++
		}
	}
	if labeled < 2 {
		return nil
	}

	if runs[0].subjectID == "" && len(runs) > 1 {
		runs[1].pages = append(runs[0].pages, runs[1].pages...)
		runs = runs[1:]
	}

	return runs
}

// writePages collects the given 0-based pages, in order, into a new
// PDF at path.
func writePages(pdf []byte, pages []int, path string) error {
	selected := make([]string, len(pages))
	for i, p := range pages {
		selected[i] = strconv.Itoa(p + 1)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create segment file: %w", err)
	}
	defer f.Close()

	if err := api.Collect(bytes.NewReader(pdf), f, selected, nil); err != nil {
		return fmt.Errorf("failed to collect pages: %w", err)
	}
	return nil
}
