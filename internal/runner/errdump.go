package runner

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"
)

// ErrorDumpFile is where a fatal top-level failure is recorded, in the
// working directory.
const ErrorDumpFile = "error_dump.txt"

// DumpError writes the diagnostic file for a fatal failure: the error
// chain plus a stack trace. Dump failures are swallowed; the process is
// already on its way out with a non-zero status.
func DumpError(err error) {
	body := fmt.Sprintf("Error: %v\nTime:  %s\n\n%s",
		err, time.Now().Format(time.RFC3339), debug.Stack())
	_ = os.WriteFile(ErrorDumpFile, []byte(body), 0644)
}
