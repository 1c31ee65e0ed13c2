// Package pebblestore wraps Pebble as seglog's metadata store.
//
// Segment data lives in plain files. Pebble holds the state that must survive
// restarts but can be rebuilt from the segments: sparse offset indexes, scan
// checkpoints, reader cursors and the stream registry. Writes follow the
// configured FsyncMode; MetricsHook observes read, write and commit latency.
// Multi-key changes go through Update so they commit atomically.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data/meta",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Update(ctx, func(b *pebblestore.Batch) error {
//	    if err := b.Put([]byte("ckpt/chat/verify"), []byte{0, 0, 0, 0, 0, 0, 0, 7}); err != nil {
//	        return err
//	    }
//	    return b.Remove([]byte("cursor/chat/old"))
//	})
//	_ = db.ScanPrefix([]byte("idx/chat/"), func(k, v []byte) error { return nil })
//
//	// drop every key of a stream, then reclaim the space
//	_ = db.DeletePrefix(ctx, []byte("idx/chat/"), []byte("ckpt/chat/"))
//	_ = db.CompactPrefix([]byte("idx/chat/"))
package pebblestore
