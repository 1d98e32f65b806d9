package filecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/vertex-studio/internal/domain"
)

// Gallery paging defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 12
	MaxLimit     = 100

	metadataSuffix = ".json"
	sampleSize     = 5
)

// Common errors returned by the Store.
var (
	ErrNotFound        = errors.New("image not found")
	ErrInvalidFilename = errors.New("invalid image filename")
)

// galleryExtensions are the file types listed by the gallery.
var galleryExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
}

// filenamePattern matches names produced by Save (and legacy timestamped names).
var filenamePattern = regexp.MustCompile(`^[0-9]+-[A-Za-z0-9]+\.(png|jpg|jpeg|webp)$`)

// timestampPrefix extracts the millisecond timestamp at the start of a filename.
var timestampPrefix = regexp.MustCompile(`^(\d+)-`)

// Image is a gallery entry.
type Image struct {
	Filename  string                `json:"filename"`
	Path      string                `json:"path"`
	Timestamp int64                 `json:"timestamp"`
	Size      int64                 `json:"size"`
	Metadata  *domain.ImageMetadata `json:"metadata,omitempty"`
}

// Page is one page of the gallery, newest images first.
type Page struct {
	Images      []Image `json:"images"`
	TotalPages  int     `json:"totalPages"`
	CurrentPage int     `json:"currentPage"`
	Total       int     `json:"total"`
}

// Stats summarizes the cache directory for diagnostics.
type Stats struct {
	CacheDir    string   `json:"cacheDir"`
	Exists      bool     `json:"exists"`
	TotalFiles  int      `json:"totalFiles"`
	SampleFiles []string `json:"sampleFiles"`
}

// Store persists images under a cache directory and lists them back.
type Store struct {
	dir       string
	urlPrefix string
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New creates a Store rooted at dir, creating the directory if needed.
//
// Parameters:
//   - dir: Filesystem directory holding the images
//   - urlPrefix: Public URL prefix the directory is served under, e.g. "/cache"
//   - logger: Structured logger; nil uses slog.Default()
//
// Returns:
//   - The store, or an error if the directory cannot be created
func New(dir, urlPrefix string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		logger:    logger.With(slog.String("component", "filecache")),
		now:       time.Now,
		newID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the image and its metadata sidecar and returns the image's
// public path.
func (s *Store) Save(ctx context.Context, image domain.ImagePayload, meta domain.ImageMetadata) (string, error) {
	if len(image.Data) == 0 {
		return "", fmt.Errorf("%w: image has no data", domain.ErrEmptyContent)
	}

	filename := fmt.Sprintf("%d-%s.%s", s.now().UnixMilli(), s.newID(), image.Extension())
	target := filepath.Join(s.dir, filename)

	if err := writeFileAtomic(s.dir, target, image.Data); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	if meta.MIMEType == "" {
		meta.MIMEType = image.MIMEType
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now().UTC()
	}
	sidecar, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode image metadata: %w", err)
	}
	if err := writeFileAtomic(s.dir, target+metadataSuffix, sidecar); err != nil {
		// The image itself is usable without metadata
		s.logger.WarnContext(ctx, "failed to write image metadata",
			"filename", filename,
			"error", err)
	}

	s.logger.DebugContext(ctx, "image saved",
		"filename", filename,
		"bytes", len(image.Data))
	return s.publicPath(filename), nil
}

// List returns one page of images, newest first. A page or limit below 1
// falls back to the defaults and limit is capped at MaxLimit. A missing cache
// directory yields an empty page.
func (s *Store) List(ctx context.Context, page, limit int) (Page, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Page{Images: []Image{}, CurrentPage: DefaultPage}, nil
		}
		return Page{}, fmt.Errorf("failed to read cache directory: %w", err)
	}

	images := make([]Image, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isGalleryFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}
		images = append(images, Image{
			Filename:  entry.Name(),
			Path:      s.publicPath(entry.Name()),
			Timestamp: timestampOf(entry.Name(), info.ModTime()),
			Size:      info.Size(),
		})
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].Timestamp != images[j].Timestamp {
			return images[i].Timestamp > images[j].Timestamp
		}
		return images[i].Filename > images[j].Filename
	})

	total := len(images)
	result := Page{
		Images:      []Image{},
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
		Total:       total,
	}

	start := (page - 1) * limit
	if start >= total {
		return result, nil
	}
	end := min(start+limit, total)
	result.Images = images[start:end]
	for i := range result.Images {
		result.Images[i].Metadata = s.readMetadata(ctx, result.Images[i].Filename)
	}

	return result, nil
}

// Delete removes an image and its metadata sidecar.
// Returns ErrInvalidFilename for names that are not plain cache filenames and
// ErrNotFound when the image does not exist.
func (s *Store) Delete(ctx context.Context, filename string) error {
	if !ValidFilename(filename) {
		return ErrInvalidFilename
	}

	target := filepath.Join(s.dir, filename)
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete image: %w", err)
	}
	if err := os.Remove(target + metadataSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.WarnContext(ctx, "failed to delete image metadata",
			"filename", filename,
			"error", err)
	}

	s.logger.InfoContext(ctx, "image deleted", "filename", filename)
	return nil
}

// Stats reports the cache directory, its image count and a few sample names.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{CacheDir: s.dir, SampleFiles: []string{}}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to read cache directory: %w", err)
	}

	stats.Exists = true
	for _, entry := range entries {
		if entry.IsDir() || !isGalleryFile(entry.Name()) {
			continue
		}
		stats.TotalFiles++
		if len(stats.SampleFiles) < sampleSize {
			stats.SampleFiles = append(stats.SampleFiles, entry.Name())
		}
	}
	return stats, nil
}

// ValidFilename reports whether name looks like an image written by Save.
func ValidFilename(name string) bool {
	return name == filepath.Base(name) && filenamePattern.MatchString(name)
}

func (s *Store) publicPath(filename string) string {
	return path.Join(s.urlPrefix, filename)
}

func (s *Store) readMetadata(ctx context.Context, filename string) *domain.ImageMetadata {
	data, err := os.ReadFile(filepath.Join(s.dir, filename+metadataSuffix))
	if err != nil {
		return nil
	}
	var meta domain.ImageMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		s.logger.DebugContext(ctx, "ignoring unreadable image metadata",
			"filename", filename,
			"error", err)
		return nil
	}
	return &meta
}

func isGalleryFile(name string) bool {
	_, ok := galleryExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func timestampOf(name string, modTime time.Time) int64 {
	if match := timestampPrefix.FindStringSubmatch(name); match != nil {
		if ms, err := strconv.ParseInt(match[1], 10, 64); err == nil {
			return ms
		}
	}
	return modTime.UnixMilli()
}

// writeFileAtomic writes data to a temporary file in dir and renames it into
// place so readers never observe a partially written image.
func writeFileAtomic(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
