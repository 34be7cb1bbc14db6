// Package source feeds detection batches into the monitor. The detection
// collaborator runs out of process and drops one JSON sidecar per analyzed
// frame; these sources pick the sidecars up.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

// DirectorySource watches one camera's capture directory for new sidecar
// files. Files already handed out are remembered by name, so re-polling the
// same directory is idempotent.
type DirectorySource struct {
	camera    string
	dir       string
	log       *zap.Logger
	processed map[string]bool
}

// NewDirectorySource creates a source reading <capturesDir>/<camera>/*.json.
func NewDirectorySource(capturesDir, camera string, log *zap.Logger) *DirectorySource {
	if log == nil {
		log = zap.NewNop()
	}
	return &DirectorySource{
		camera:    camera,
		dir:       filepath.Join(capturesDir, camera),
		log:       log.With(zap.String("camera", camera)),
		processed: make(map[string]bool),
	}
}

// Camera returns the camera this source feeds.
func (s *DirectorySource) Camera() string { return s.camera }

// NextBatches returns the batches from sidecar files not yet handed out,
// sorted by timestamp. Malformed files are logged, marked processed and
// skipped so they are not re-read every poll.
func (s *DirectorySource) NextBatches(ctx context.Context) ([]vigil.DetectionBatch, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read capture dir %s: %w", s.dir, err)
	}

	var batches []vigil.DetectionBatch
	for _, entry := range entries {
		if ctx.Err() != nil {
			return batches, ctx.Err()
		}
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || s.processed[name] {
			continue
		}
		s.processed[name] = true

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.log.Warn("failed to read sidecar", zap.String("file", name), zap.Error(err))
			continue
		}
		var batch vigil.DetectionBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			s.log.Warn("skipping malformed sidecar", zap.String("file", name), zap.Error(err))
			continue
		}
		if batch.Camera == "" {
			batch.Camera = s.camera
		}
		if batch.FrameID == "" {
			// The filename is stable across polls, so it works as a frame ID
			// for collaborators that do not set one.
			batch.FrameID = name
		}
		batches = append(batches, batch)
	}

	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].Timestamp.Before(batches[j].Timestamp)
	})
	return batches, nil
}
