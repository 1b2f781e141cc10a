// Package channel implements the packet channel store: one interleaved stream of
// 16-byte packets shared by many named channels (GPIO lines, events, licks).
//
// # File Layout
//
//	[packet 0][packet 1]...[packet n-1][footer][trailer]
//
// Tagged packets hold a u64 offset in microseconds from the file start, the u32
// channel id and an f32 value. The legacy single-channel layout replaces the id
// and value with an f64 whose sign bit carries a boolean state.
//
// Packets are stored in the order written. Readers assume offsets are monotonic
// within one channel, not across channels. Channel metadata (first offset, sample
// count) accumulates as packets arrive and is committed to the footer by
// CloseForWriting, with the same close discipline as the record store.
//
// # Reading
//
// ReadLogical returns a channel's packets as time/value events. ReadDense
// rebuilds a regular trace on a sampling grid derived from the channel step and
// the file time range; missing and out-of-order indices come back as NaN and are
// listed as dropped on the returned grid.
package channel
