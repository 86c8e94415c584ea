package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cuongbtq/mediaqueue/internal/domain"
)

const mib = 1024 * 1024

var (
	imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".gif"}
	videoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}

	youtubeURL = regexp.MustCompile(`^(https?://)?(www\.|m\.|music\.)?(youtube\.com/(watch\?v=|shorts/|live/|embed/)|youtu\.be/)[A-Za-z0-9_-]{6,}`)
)

// AllowedExtensions lists the input extensions accepted for an upload category.
func AllowedExtensions(category domain.Category) []string {
	switch category {
	case domain.CategoryBackgroundRemoval:
		return imageExtensions
	case domain.CategoryDedup:
		return videoExtensions
	default:
		return nil
	}
}

// ValidExtension reports whether name carries an extension accepted for category.
func ValidExtension(category domain.Category, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions(category) {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ValidURL reports whether raw looks like a supported video URL.
func ValidURL(raw string) bool {
	return youtubeURL.MatchString(strings.TrimSpace(raw))
}

// CheckSize rejects inputs larger than limit. A zero limit disables the check.
func CheckSize(kind string, size, limit int64) error {
	if limit > 0 && size > limit {
		return fmt.Errorf("%w: %s must be under %s. Your file: %s",
			domain.ErrInvalidInput, kind, FormatMB(limit), FormatMB(size))
	}
	return nil
}

// FormatMB renders a byte count the way users see upload limits.
func FormatMB(n int64) string {
	return fmt.Sprintf("%.1f MB", float64(n)/mib)
}

func checkFile(category domain.Category, kind, path string, limit int64) error {
	if !ValidExtension(category, path) {
		return fmt.Errorf("%w: unsupported %s type %q (use %s)",
			domain.ErrInvalidInput, kind, filepath.Ext(path), strings.Join(AllowedExtensions(category), ", "))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s not readable: %v", domain.ErrInvalidInput, kind, err)
	}

	return CheckSize(strings.ToUpper(kind[:1])+kind[1:], info.Size(), limit)
}
