// Package storage defines persistence for recorded annotation pages.
package storage

import (
	"context"
	"errors"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
)

// ErrNotFound indicates the recording has not been saved.
var ErrNotFound = errors.New("recording not found")

// RecordingStore loads and saves the pages of a recording as a unit.
type RecordingStore interface {
	LoadPages(ctx context.Context, recordingID string) ([]domain.Page, error)
	SavePages(ctx context.Context, recordingID string, pages []domain.Page) error
}
