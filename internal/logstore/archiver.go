package logstore

// ArchiverHook is an optional callback invoked when a segment leaves the log.
// archivedPath is empty when the segment was deleted rather than moved.
type ArchiverHook interface {
	EmitSegmentRemoved(stream string, info SegmentInfo, archivedPath string)
}

type noopArchiver struct{}

func (noopArchiver) EmitSegmentRemoved(string, SegmentInfo, string) {}
