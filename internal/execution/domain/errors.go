package execution

import "errors"

// ErrFileNotReady rejects execution of a file that has not been analyzed.
var ErrFileNotReady = errors.New("execution: file not ready")

// ErrNoBranchLines indicates the branch owns no lines in the file.
var ErrNoBranchLines = errors.New("execution: no lines for branch")
