// -----------------------------------------------------------------------
// Crash Protection - Fatal error handling and crash file generation
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// crashDir is where crash reports land. Set once at startup.
var crashDir = "./logs"

// InstallCrashHandler sets the crash report directory and makes sure it
// exists. Call at the start of main() before any goroutines spawn.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		crashDir = logDir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot create crash directory: %v\n", err)
	}
}

// RecoverWithCrashFile recovers a panic, writes a crash report and exits.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		WriteCrashFile(r, GetStackTrace())
		os.Exit(1)
	}
}

// WriteCrashFile dumps the panic value, the panicking goroutine's stack,
// all goroutine stacks and runtime stats to a timestamped file. Returns
// the file path, or empty string if even that failed.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	path := filepath.Join(crashDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))

	// Unbuffered writes only; the process is going down.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot create crash file: %v\n", err)
		writeCrashReport(os.Stderr, panicVal, stackTrace)
		return ""
	}
	writeCrashReport(file, panicVal, stackTrace)
	file.Sync()
	file.Close()

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - report saved to %s !!!\n", path)
	fmt.Fprintf(os.Stderr, "Panic: %v\n", panicVal)
	return path
}

func writeCrashReport(w io.Writer, panicVal interface{}, stackTrace string) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fmt.Fprintf(w, "consilium crash report\n")
	fmt.Fprintf(w, "time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "version: %s\n\n", GetFullVersion())

	fmt.Fprintf(w, "panic: %v\n\n", panicVal)
	fmt.Fprintf(w, "stack:\n%s\n", stackTrace)

	fmt.Fprintf(w, "goroutines (%d):\n%s\n", runtime.NumGoroutine(), allGoroutineStacks())

	fmt.Fprintf(w, "runtime: %s/%s cpus=%d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Fprintf(w, "mem: alloc=%dMB sys=%dMB numgc=%d\n",
		mem.Alloc/1024/1024, mem.Sys/1024/1024, mem.NumGC)
}

// allGoroutineStacks captures every goroutine's stack, growing the buffer
// until the dump fits.
func allGoroutineStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return string(buf[:n])
		}
		if len(buf) >= 64*1024*1024 {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}
