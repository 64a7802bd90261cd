package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openmined/vaultsync/internal/client/remote"
)

const (
	DefaultBatchThreshold = 5
	DefaultBatchSize      = 20
)

// WriteOutcome is the result of one write handed to a BatchCommitBuilder.
type WriteOutcome struct {
	Path   string
	Result *remote.WriteResult
	Err    error
}

// BatchCommitBuilder groups writes into remote commits when the backend
// supports atomic multi file writes. A failed commit is retried file by file,
// for that chunk only.
type BatchCommitBuilder struct {
	xfer      *transfer
	threshold int
	size      int
	log       *slog.Logger
}

func (b *BatchCommitBuilder) WriteAll(ctx context.Context, reqs []*remote.WriteRequest, message string) []WriteOutcome {
	bw, ok := b.xfer.backend.(remote.BatchWriter)
	if !ok || len(reqs) < b.threshold {
		return b.writeEach(ctx, reqs)
	}

	outcomes := make([]WriteOutcome, 0, len(reqs))
	for start := 0; start < len(reqs); start += b.size {
		chunk := reqs[start:min(start+b.size, len(reqs))]

		msg := message
		if msg == "" {
			msg = fmt.Sprintf("vaultsync: %d files", len(chunk))
		}

		results, err := RetryValue(ctx, b.xfer.retry, "batch write", func(ctx context.Context) ([]*remote.WriteResult, error) {
			return bw.WriteBatch(ctx, chunk, msg)
		})
		if err != nil {
			b.log.Warn("batch commit failed, writing files individually", "files", len(chunk), "error", err)
			outcomes = append(outcomes, b.writeEach(ctx, chunk)...)
			continue
		}

		b.log.Info("batch commit", "files", len(chunk))
		outcomes = append(outcomes, matchResults(chunk, results)...)
	}
	return outcomes
}

func (b *BatchCommitBuilder) writeEach(ctx context.Context, reqs []*remote.WriteRequest) []WriteOutcome {
	outcomes := make([]WriteOutcome, 0, len(reqs))
	for _, req := range reqs {
		res, err := b.xfer.write(ctx, req)
		outcomes = append(outcomes, WriteOutcome{Path: req.Path, Result: res, Err: err})
	}
	return outcomes
}

// matchResults pairs batch results with their requests by path, falling back
// to position for results without one.
func matchResults(reqs []*remote.WriteRequest, results []*remote.WriteResult) []WriteOutcome {
	byPath := make(map[string]*remote.WriteResult, len(results))
	for _, r := range results {
		if r != nil && r.Path != "" {
			byPath[r.Path] = r
		}
	}

	outcomes := make([]WriteOutcome, 0, len(reqs))
	for i, req := range reqs {
		res, ok := byPath[req.Path]
		if !ok && i < len(results) && results[i] != nil && results[i].Path == "" {
			res, ok = results[i], true
		}
		if !ok {
			outcomes = append(outcomes, WriteOutcome{Path: req.Path, Err: fmt.Errorf("upload %s: missing from batch result", req.Path)})
			continue
		}
		outcomes = append(outcomes, WriteOutcome{Path: req.Path, Result: res})
	}
	return outcomes
}
