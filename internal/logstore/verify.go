package logstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rzbill/seglog/internal/segment"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// CheckpointVerify names the checkpoint VerifyAll resumes from.
const CheckpointVerify = "verify"

// VerifyResult is the outcome of checking one segment.
type VerifyResult struct {
	Segment    uint64
	Sealed     bool
	OK         bool
	Entries    uint64 // valid entries before the first problem
	Bytes      int64  // bytes covered by those entries
	CorruptAt  int64  // data offset of the first bad record, -1 when OK
	CorruptSeq uint64 // sequence expected at CorruptAt
	Err        error
}

// VerifyReport aggregates a VerifyAll pass.
type VerifyReport struct {
	ResumedAfter uint64 // segment id the pass resumed after, 0 for a fresh pass
	Complete     bool
	Results      []VerifyResult
}

// Corrupt returns the results that failed verification.
func (r VerifyReport) Corrupt() []VerifyResult {
	var out []VerifyResult
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, res)
		}
	}
	return out
}

// VerifyIntegrity recomputes the checksum of every record in segment id and checks
// that sequence numbers match the segment's header. Corruption is reported in the
// result; the returned error is reserved for I/O failures and cancellation.
func (l *Log) VerifyIntegrity(ctx context.Context, id uint64) (VerifyResult, error) {
	info, ok := l.segmentByID(id)
	if !ok {
		return VerifyResult{}, fmt.Errorf("%w: segment %d", ErrNotFound, id)
	}
	return l.verify(ctx, info)
}

func (l *Log) verify(ctx context.Context, info SegmentInfo) (VerifyResult, error) {
	res := VerifyResult{Segment: info.ID, Sealed: info.Sealed, CorruptAt: -1}
	r, err := segment.OpenReader(info.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, fmt.Errorf("%w: segment %d", ErrNotFound, info.ID)
		}
		return res, fmt.Errorf("%w: open segment %d: %w", ErrIO, info.ID, err)
	}
	defer r.Close()

	if info.Sealed {
		h, err := r.ReadHeader()
		if err != nil || h.ID != info.ID || h.DataSize != info.Size {
			if err == nil {
				err = segment.ErrBadHeader
			}
			res.CorruptAt = 0
			res.CorruptSeq = info.FirstSeq
			res.Err = fmt.Errorf("%w: segment %d header: %w", ErrCorruption, info.ID, err)
			return res, nil
		}
	}

	expect := info.FirstSeq
	var n int
	err = r.Scan(0, info.Size, func(off int64, rec segment.Record) error {
		n++
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if rec.Seq != expect {
			return &segment.ScanError{Offset: off, Seq: expect, Err: fmt.Errorf("seq %d out of order", rec.Seq)}
		}
		res.Entries++
		res.Bytes = off + int64(rec.Size())
		expect++
		return nil
	})
	var se *segment.ScanError
	switch {
	case errors.As(err, &se):
		res.CorruptAt = se.Offset
		res.CorruptSeq = expect
		res.Err = fmt.Errorf("%w: segment %d: %w", ErrCorruption, info.ID, err)
		return res, nil
	case err != nil:
		if ctx.Err() != nil {
			return res, err
		}
		return res, fmt.Errorf("%w: verify segment %d: %w", ErrIO, info.ID, err)
	}
	if res.Entries != info.Entries() {
		res.CorruptAt = res.Bytes
		res.CorruptSeq = expect
		res.Err = fmt.Errorf("%w: segment %d holds %d entries, header says %d", ErrCorruption, info.ID, res.Entries, info.Entries())
		return res, nil
	}
	res.OK = true
	return res, nil
}

// VerifyAll verifies every segment in id order, resuming after the segment recorded
// by the previous, interrupted pass. A failing segment is logged and the pass
// continues. The checkpoint is cleared once a pass completes.
func (l *Log) VerifyAll(ctx context.Context) (VerifyReport, error) {
	after, err := l.Checkpoint(CheckpointVerify)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("%w: load checkpoint: %w", ErrIO, err)
	}
	rep := VerifyReport{ResumedAfter: after}
	for _, info := range l.Segments() {
		if info.ID <= after {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res, err := l.verify(ctx, info)
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			if errors.Is(err, ErrNotFound) {
				// removed by retention during the pass
				continue
			}
			res.Err = err
			l.logger.Error("verify segment failed", logpkg.Uint64("segment", info.ID), logpkg.Err(err))
		} else if !res.OK {
			l.stats.update(func(s *Stats) { s.CorruptReads++ })
			l.logger.Error("segment corrupted",
				logpkg.Uint64("segment", info.ID),
				logpkg.Int64("offset", res.CorruptAt),
				logpkg.Uint64("seq", res.CorruptSeq),
				logpkg.Err(res.Err))
		}
		rep.Results = append(rep.Results, res)
		if err := l.SaveCheckpoint(ctx, CheckpointVerify, info.ID); err != nil {
			l.logger.Warn("save verify checkpoint", logpkg.Err(err))
		}
	}
	rep.Complete = true
	if err := l.SaveCheckpoint(ctx, CheckpointVerify, 0); err != nil {
		l.logger.Warn("clear verify checkpoint", logpkg.Err(err))
	}
	return rep, nil
}
