// Package seriesstore joins record or channel files recorded back to back into
// one series with a single global index space.
//
// Member files are supplied in any order. The series sorts them by grid start,
// validates each against the ones before it (kind, shape, history, overlap, then
// record or channel count) and owns the resulting stores:
//
//	s, err := seriesstore.OpenRecordSeries(ctx, paths,
//		seriesstore.WithQueue(queue),
//		seriesstore.WithCatalog(cat),
//	)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	trace, err := s.Trace(3) // record 3 across every member, without gaps
//
// Reads take a global sample index or an absolute time and are delegated to the
// member that owns it. Writes go through Writer, the latest member, and only
// while it is still WriteOpen.
//
// Opening is not cancellable mid-file: the context is checked between files.
package seriesstore
