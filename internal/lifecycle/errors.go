package lifecycle

import "fmt"

// DuplicateIdentifierError reports a start for an identifier that is
// already active in the same stream.
type DuplicateIdentifierError struct {
	Stream string
	ID     string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("duplicate identifier %q in %s stream", e.ID, e.Stream)
}

// OrphanMoveError reports a move or change with no matching start.
type OrphanMoveError struct {
	Stream string
	ID     string
}

func (e *OrphanMoveError) Error() string {
	return fmt.Sprintf("move for unknown identifier %q in %s stream", e.ID, e.Stream)
}

// OrphanEndError reports an end with no matching start.
type OrphanEndError struct {
	Stream string
	ID     string
}

func (e *OrphanEndError) Error() string {
	return fmt.Sprintf("end for unknown identifier %q in %s stream", e.ID, e.Stream)
}

// NoCommonTargetError reports gesture sub-points resolving to different
// targets. The gesture instance is suppressed; other instances continue.
type NoCommonTargetError struct {
	Stream string
	ID     string
}

func (e *NoCommonTargetError) Error() string {
	return fmt.Sprintf("gesture %q in %s stream has no common target", e.ID, e.Stream)
}
