package engine

// FileJob is the unit the Scanner hands the Work Queue (§3). It is
// immutable once queued; InodeHint orders jobs for on-disk locality but
// carries no other meaning.
type FileJob struct {
	SrcPath   string
	DstPath   string
	InodeHint uint64
}
