package logstore

import "context"

// WaitForAppend blocks until an entry with a sequence greater than after exists,
// ctx is done, or the log is closed. It returns the last written sequence.
func (l *Log) WaitForAppend(ctx context.Context, after uint64) (uint64, error) {
	for {
		l.mu.Lock()
		ch, closed := l.notifyCh, l.closed
		last := l.LastSeq()
		l.mu.Unlock()
		if last > after {
			return last, nil
		}
		if closed {
			return last, ErrClosed
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
}
