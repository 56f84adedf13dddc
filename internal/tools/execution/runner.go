package execution

import (
	"context"
	"time"
)

const defaultCmdTimeout = 60 * time.Second

// Result captures the output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Runner runs commands inside a repository directory. The host
// implementation is the only one shipped; tests substitute mocks.
type Runner interface {
	// RunCmd runs name with args in repoDir. A timeout <= 0 uses the
	// default. The whole process group is killed when the deadline
	// passes.
	RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error)
}
