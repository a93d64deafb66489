// -----------------------------------------------------------------------
// Crash Protection - Fatal error handling and crash file generation
// -----------------------------------------------------------------------

package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"
)

// CrashLogDir is the directory where crash files will be written
var CrashLogDir = "./logs"

var (
	crashMu      sync.RWMutex
	crashDetails = map[string]func() string{}
)

// InstallCrashHandler sets the crash directory and makes sure it exists.
// Call at the start of main() together with a deferred RecoverWithCrashFile.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		CrashLogDir = logDir
	}
	if err := os.MkdirAll(CrashLogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to create log directory: %v\n", err)
	}
}

// RegisterCrashDetail adds a named value to every crash report, such as the
// number of tracked jobs. fn runs while the process is failing and must not block.
func RegisterCrashDetail(name string, fn func() string) {
	crashMu.Lock()
	defer crashMu.Unlock()
	crashDetails[name] = fn
}

// RecoverWithCrashFile writes a crash report and exits on panic.
// Usage: defer common.RecoverWithCrashFile()
func RecoverWithCrashFile() {
	if r := recover(); r != nil {
		writeCrashFile(r, GetStackTrace())
		os.Exit(1)
	}
}

// GetStackTrace returns the current goroutine's stack trace
func GetStackTrace() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// writeCrashFile writes the report under CrashLogDir, falling back to stderr.
// Returns the file path, or "" when the file could not be written.
func writeCrashFile(panicVal interface{}, stackTrace string) string {
	now := time.Now()
	crashPath := filepath.Join(CrashLogDir, fmt.Sprintf("crash-%s.log", now.Format("2006-01-02T15-04-05")))
	report := crashReport(panicVal, stackTrace, now)

	if err := os.WriteFile(crashPath, report, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: Failed to write crash file: %v\n%s", err, report)
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\nPanic: %v\n", crashPath, panicVal)
	return crashPath
}

func crashReport(panicVal interface{}, stackTrace string, now time.Time) []byte {
	var report bytes.Buffer
	fmt.Fprintf(&report, "=== STREAMTRACK CRASH REPORT ===\nTime: %s\nVersion: %s\n\n", now.Format(time.RFC3339), GetBuildInfo())
	fmt.Fprintf(&report, "=== PANIC VALUE ===\n%v\n\n", panicVal)
	fmt.Fprintf(&report, "=== STACK TRACE ===\n%s\n", stackTrace)

	report.WriteString("=== SERVICE STATE ===\n")
	fmt.Fprintf(&report, "goroutines: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&report, "recovered_panics: %d\n", GetPanicCount())

	crashMu.RLock()
	names := make([]string, 0, len(crashDetails))
	for name := range crashDetails {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&report, "%s: %s\n", name, crashDetails[name]())
	}
	crashMu.RUnlock()
	report.WriteString("\n")

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	fmt.Fprintf(&report, "=== ALL GOROUTINES ===\n%s\n=== END CRASH REPORT ===\n", buf[:n])
	return report.Bytes()
}
