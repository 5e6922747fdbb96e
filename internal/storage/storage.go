// Package storage persists uploaded artifacts (offline payment receipts,
// invoice PDFs) and hands back a publicly reachable URL for each.
package storage

import (
	"context"
	"fmt"
	"io"

	"schoolfest-backend/internal/config"
)

type Storage interface {
	// Upload writes body under key and returns the public URL. Keys use
	// forward slashes regardless of platform.
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

func New(cfg *config.Storage) (Storage, error) {
	switch cfg.Provider {
	case "local", "":
		return newLocalStorage(cfg.LocalDir, cfg.LocalBaseURL)
	case "oss":
		return newOSSStorage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
