package segmenter

import "fmt"

// DefaultExtension is the file extension of transport stream segments.
const DefaultExtension = "ts"

// SegmentName returns the deterministic file name for segment index.
func SegmentName(prefix string, index uint64, ext string) string {
	return fmt.Sprintf("%s-%d.%s", prefix, index, ext)
}
