// Package exitcode maps command failures to process exit codes.
package exitcode

const (
	Success = 0
	// Failed is a build that ran and did not succeed.
	Failed = 1
	// Usage is a bad flag or an invalid project config.
	Usage = 2
)

// Error carries the process exit code alongside its message.
type Error struct {
	Code int
	Msg  string
}

func (e Error) Error() string { return e.Msg }
func (e Error) ExitCode() int { return e.Code }

// UsageError wraps err as a usage/config failure.
func UsageError(err error) error {
	if err == nil {
		return nil
	}
	return Error{Code: Usage, Msg: err.Error()}
}

// BuildFailed reports a failed build.
func BuildFailed(msg string) error {
	return Error{Code: Failed, Msg: msg}
}
