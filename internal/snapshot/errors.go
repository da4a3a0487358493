package snapshot

import "errors"

var (
	// ErrCorrupt is returned when a snapshot fails its checksum or is
	// truncated.
	ErrCorrupt = errors.New("snapshot: corrupt")

	// ErrIncompatibleFormat is returned for blobs that are not snapshots or
	// were written by a newer or unknown format, codec or compression.
	ErrIncompatibleFormat = errors.New("snapshot: incompatible format")
)
