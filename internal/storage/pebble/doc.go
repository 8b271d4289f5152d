// Package pebblestore is the thin Pebble wrapper shared by the session
// archive: fsync policy, batches, snapshots, prefix scans and a metrics hook.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeInterval})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("sess/demo/m"), meta, nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	_ = db.ScanPrefix([]byte("sess/"), func(k, v []byte) bool { return true })
package pebblestore
