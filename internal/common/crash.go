// -----------------------------------------------------------------------
// Crash Reports - Post-mortem files for fatal panics
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// crashDir is where fatal-panic reports land. Set once at startup.
var crashDir = "./logs"

// InstallCrashHandler fixes the crash report directory and makes sure it
// exists. Call from main before anything that can panic.
func InstallCrashHandler(dir string) {
	if dir != "" {
		crashDir = dir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot create crash directory %s: %v\n", crashDir, err)
	}
}

// RecoverWithCrashFile recovers a panic, writes the report, and exits
// non-zero. Use as `defer common.RecoverWithCrashFile()` in main.
func RecoverWithCrashFile() {
	r := recover()
	if r == nil {
		return
	}
	WriteCrashFile(r, currentStack())
	os.Exit(1)
}

// WriteCrashFile renders a crash report and writes it with unbuffered IO
// (buffers cannot be trusted mid-panic). Returns the report path, or ""
// when even the file write failed and the report went to stderr instead.
func WriteCrashFile(panicVal interface{}, stackTrace string) string {
	path := filepath.Join(crashDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))

	var b strings.Builder
	section := func(title string) {
		b.WriteString("=== " + title + " ===\n")
	}

	section("PACTUM CRASH REPORT")
	fmt.Fprintf(&b, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Version: %s\n\n", GetFullVersion())

	section("PANIC")
	fmt.Fprintf(&b, "%v\n\n", panicVal)

	section("STACK")
	b.WriteString(stackTrace)
	b.WriteString("\n")

	section("ALL GOROUTINES")
	b.WriteString(allGoroutineStacks())
	b.WriteString("\n")

	section("RUNTIME")
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(&b, "Goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&b, "CPUs: %d\n", runtime.NumCPU())
	fmt.Fprintf(&b, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "HeapAlloc: %d MB\n", mem.Alloc/1024/1024)
	fmt.Fprintf(&b, "Sys: %d MB\n", mem.Sys/1024/1024)
	fmt.Fprintf(&b, "GC cycles: %d\n", mem.NumGC)

	report := b.String()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot create crash file: %v\n%s", err, report)
		return ""
	}
	if _, err := file.WriteString(report); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: cannot write crash file: %v\n%s", err, report)
	}
	file.Sync()
	file.Close()

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - report saved to %s !!!\nPanic: %v\n", path, panicVal)
	return path
}

func currentStack() string {
	buf := make([]byte, 8192)
	return string(buf[:runtime.Stack(buf, false)])
}

// allGoroutineStacks dumps every goroutine, growing the buffer until the
// dump fits (capped at 64 MB).
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
