package block

import (
	"errors"
	"fmt"
)

// These errors are used by Manager.
var (
	// ErrNonMonotonicTime is returned when the clock would put a block before its parent.
	ErrNonMonotonicTime = errors.New("timestamp is not monotonically increasing")

	// ErrStateRootMismatch is returned when the executor disagrees with the stored state root.
	ErrStateRootMismatch = errors.New("state root mismatch")
)

// SaveBlockError is returned on failure to save block data
type SaveBlockError struct {
	Err error
}

func (e SaveBlockError) Error() string {
	return fmt.Sprintf("failed to save block: %v", e.Err)
}

func (e SaveBlockError) Unwrap() error {
	return e.Err
}
