package playlist

// Segment is one completed media segment as listed in the manifest.
// It is immutable once appended.
type Segment struct {
	Index    uint64
	Name     string
	Duration float64
}
