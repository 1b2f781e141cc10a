// Package record implements the record store: an append-only file of fixed-stride
// binary records followed by a versioned footer.
//
// # File Layout
//
//	[record 0][record 1]...[record n-1][footer][trailer]
//
// Record i starts at i*(ImageBytes+TraceBytes). The image block comes first,
// then the trace block holding one little-endian float32 per recorded sample of
// the file's sampling grid.
//
// Per-record sidecar attributes (name, status, color, activity, metrics) are kept
// in memory and written once, in the footer, by CloseForWriting. The footer is the
// commit point: a file without one is incomplete.
//
// # Lifecycle
//
//	Create ──► WriteOpen ──CloseForWriting──► Closed
//	Open   ──► ReadOpen
//
// Any mutation of a Closed or ReadOpen store fails with
// errs.ErrClosedFileMutation.
//
// # Usage
//
//	s, err := record.Create(path, record.Config{Kind: format.KindCellTrace, Grid: g, Layout: layout})
//	if err != nil {
//		return err
//	}
//	for i, payload := range payloads {
//		if err := s.WriteRecord(uint64(i), payload); err != nil {
//			return err
//		}
//	}
//	_ = s.SetStatus(0, format.StatusAccepted)
//	return s.Close()
//
// A Store is not reentrant. Each call holds the store's I/O lock (see
// WithIOLock) for its whole duration.
package record
