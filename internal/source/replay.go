package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/banshee-data/vigil.report/internal/vigil"
)

// ReplaySource hands out a recorded batch stream, one file of JSON lines, in
// timestamp order. The first poll returns everything; later polls return
// nothing. Useful for reprocessing a capture session through the live
// pipeline.
type ReplaySource struct {
	camera  string
	path    string
	log     *zap.Logger
	drained bool
}

// NewReplaySource creates a replay source for one camera's recorded batches.
func NewReplaySource(path, camera string, log *zap.Logger) *ReplaySource {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReplaySource{camera: camera, path: path, log: log}
}

// Camera returns the camera this source replays.
func (s *ReplaySource) Camera() string { return s.camera }

// NextBatches returns the full recorded stream on the first call.
func (s *ReplaySource) NextBatches(ctx context.Context) ([]vigil.DetectionBatch, error) {
	if s.drained {
		return nil, nil
	}
	s.drained = true

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open replay file %s: %w", s.path, err)
	}
	defer f.Close()

	var batches []vigil.DetectionBatch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return batches, ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var batch vigil.DetectionBatch
		if err := json.Unmarshal(line, &batch); err != nil {
			s.log.Warn("skipping malformed replay line",
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}
		if batch.Camera == "" {
			batch.Camera = s.camera
		}
		if batch.FrameID == "" {
			batch.FrameID = fmt.Sprintf("%s:%d", s.path, lineNo)
		}
		batches = append(batches, batch)
	}
	if err := scanner.Err(); err != nil {
		return batches, fmt.Errorf("read replay file: %w", err)
	}

	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].Timestamp.Before(batches[j].Timestamp)
	})
	return batches, nil
}
