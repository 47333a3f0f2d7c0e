// Package storage persists processed images on local disk under opaque
// generated names, serves them back over HTTP and sweeps out files past the
// retention window. An S3-compatible mirror can shadow every save.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/simple-flow/find-image/internal/config"
	"github.com/simple-flow/find-image/internal/models"
	"go.uber.org/zap"
)

// Storage owns the on-disk image directory.
type Storage struct {
	dir           string
	publicBase    string
	retentionDays int
	mirror        *Mirror
	logger        *zap.Logger
	now           func() time.Time
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*Storage, error) {
	dir := cfg.Paths.Images
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir %s: %w", dir, err)
	}

	var mirror *Mirror
	if cfg.S3.Enable {
		m, err := NewMirror(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("configure s3 mirror: %w", err)
		}
		mirror = m
	}

	return &Storage{
		dir:           dir,
		publicBase:    strings.TrimRight(cfg.PublicURL, "/"),
		retentionDays: cfg.Images.RetentionDays,
		mirror:        mirror,
		logger:        logger.Named("storage"),
		now:           time.Now,
	}, nil
}

// Save writes the processed bytes under a fresh opaque name and returns the
// public URL clients can fetch it from. The optional mirror upload is best
// effort and never fails the save.
func (s *Storage) Save(ctx context.Context, img *models.ProcessedImage) (string, error) {
	name := uuid.NewString() + "." + extensionFor(img.Format)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", name, err)
	}
	s.logger.Info("saved image", zap.String("name", name), zap.Int("size_kb", img.SizeKB))

	if s.mirror != nil {
		if _, err := s.mirror.Upload(ctx, name, img.Data, contentTypeFor(img.Format)); err != nil {
			s.logger.Warn("s3 mirror upload failed", zap.String("name", name), zap.Error(err))
		}
	}

	return s.publicBase + "/images/" + name, nil
}

// Path resolves a stored name to its on-disk location, or "" when the name
// is unsafe or unknown.
func (s *Storage) Path(name string) string {
	name = safeName(name)
	if name == "" {
		return ""
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Sweep deletes stored images older than the retention window and reports
// how many were removed.
func (s *Storage) Sweep() (int, error) {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read image dir: %w", err)
	}

	removed := 0
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, ent.Name())); err != nil {
			s.logger.Warn("sweep remove failed", zap.String("name", ent.Name()), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("retention sweep removed images", zap.Int("count", removed))
	}
	return removed, nil
}

func extensionFor(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "jpg"
	case "png":
		return "png"
	case "gif":
		return "gif"
	case "webp":
		return "webp"
	default:
		return "img"
	}
}

func contentTypeFor(format string) string {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// safeName keeps stored-name lookups inside the image directory. Any input
// carrying a path separator or parent reference is rejected outright rather
// than normalized, so "../a.jpg" never collapses to a valid lookup.
func safeName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" || name == "." {
		return ""
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return ""
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			continue
		}
		return ""
	}
	return name
}
