package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/storage/models"
)

// Entry is one candidate archive file found during enumeration.
type Entry struct {
	// Path is the absolute source path; it doubles as the cheap dedup
	// key against already-processed files.
	Path        string
	Name        string
	TenantCode  string
	MonthFolder string
}

// Source enumerates candidate files for one ingestion run.
type Source interface {
	Enumerate() ([]Entry, error)
	Kind() models.DocumentSource
}

// supportedExtensions lists the file types the pipeline accepts.
// Everything else in the archive tree is ignored silently.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tiff": true,
	".txt":  true,
	".csv":  true,
}

// junkNames are OS artifacts that show up on network shares.
var junkNames = map[string]bool{
	"thumbs.db":   true,
	"desktop.ini": true,
	".ds_store":   true,
}

// FilesystemSource walks a tenant-partitioned archive tree laid out as
// {8-digit tenant code}/{YYYYMM}/{file}. Anything outside that shape
// is skipped.
type FilesystemSource struct {
	root string
	log  *zap.Logger
}

func NewFilesystemSource(root string, log *zap.Logger) *FilesystemSource {
	return &FilesystemSource{root: root, log: log}
}

func (s *FilesystemSource) Kind() models.DocumentSource {
	return models.SourceBatchArchive
}

func (s *FilesystemSource) Enumerate() ([]Entry, error) {
	tenantDirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive root: %w", err)
	}

	var entries []Entry
	for _, tenantDir := range tenantDirs {
		if !tenantDir.IsDir() || !isTenantCode(tenantDir.Name()) {
			continue
		}
		tenantPath := filepath.Join(s.root, tenantDir.Name())

		monthDirs, err := os.ReadDir(tenantPath)
		if err != nil {
			s.log.Warn("Failed to read tenant folder",
				zap.String("tenant", tenantDir.Name()),
				zap.Error(err),
			)
			continue
		}

		for _, monthDir := range monthDirs {
			if !monthDir.IsDir() {
				continue
			}
			if _, _, ok := ParsePeriod(monthDir.Name()); !ok {
				continue
			}
			monthPath := filepath.Join(tenantPath, monthDir.Name())

			files, err := os.ReadDir(monthPath)
			if err != nil {
				s.log.Warn("Failed to read month folder",
					zap.String("folder", monthPath),
					zap.Error(err),
				)
				continue
			}

			for _, file := range files {
				if file.IsDir() {
					continue
				}
				name := file.Name()
				if junkNames[strings.ToLower(name)] {
					continue
				}
				if !supportedExtensions[strings.ToLower(filepath.Ext(name))] {
					continue
				}
				entries = append(entries, Entry{
					Path:        filepath.Join(monthPath, name),
					Name:        name,
					TenantCode:  tenantDir.Name(),
					MonthFolder: monthDir.Name(),
				})
			}
		}
	}

	s.log.Info("Archive enumerated",
		zap.String("root", s.root),
		zap.Int("files", len(entries)),
	)
	return entries, nil
}

// ParsePeriod parses a YYYYMM month folder name into its accounting
// period. Years outside 2000..2100 are rejected as folder noise.
func ParsePeriod(folder string) (year, month int, ok bool) {
	if len(folder) != 6 || !isDigits(folder) {
		return 0, 0, false
	}
	year = int(folder[0]-'0')*1000 + int(folder[1]-'0')*100 + int(folder[2]-'0')*10 + int(folder[3]-'0')
	month = int(folder[4]-'0')*10 + int(folder[5]-'0')
	if month < 1 || month > 12 || year < 2000 || year > 2100 {
		return 0, 0, false
	}
	return year, month, true
}

func isTenantCode(name string) bool {
	return len(name) == 8 && isDigits(name)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
