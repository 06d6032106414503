// Package batch implements the sealed, encoded audio unit (C3 in spec.md
// §2/§4.3): atomic batches stamped with a session id, sealed on a
// word-boundary heuristic or a hard duration ceiling.
package batch

// Batch is an atomic, sealed unit of encoded audio (spec.md §3).
type Batch struct {
	ID         string
	SessionID  string
	SealedAt   int64 // monotonic ms
	DurationMS int64

	// EncodedBytes is this batch's own independently-decodable blob: the
	// session's init segment prepended once, followed by the concatenation
	// of RawChunks. A single-batch session's save can shortcut to this
	// value directly (spec.md §4.7) instead of re-concatenating.
	EncodedBytes []byte

	// RawChunks are the fragments as received from the recorder, with no
	// init segment, so a multi-batch session's saved blob only embeds the
	// init segment once (spec.md §3, §9 "Init-segment duplication").
	RawChunks [][]byte
}
