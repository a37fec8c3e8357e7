// Package diagnostics formats kernel errors, task faults in particular, and
// prints them in a consistent way.
package diagnostics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/piccolo-os/piccolo/kernel"
)

// A single diagnostic.
type Diagnostic struct {
	// Task the diagnostic is about, or the null handle.
	Task kernel.Handle
	Msg  string

	// Goroutine stack of a faulted task, if available.
	Stack []byte
}

// All diagnostics of one core. Core is -1 for errors that can't be connected
// to a single core.
type CoreDiagnostic struct {
	Core        int
	Diagnostics []Diagnostic
}

// Diagnostics of the whole system, sorted by core.
type SystemDiagnostic []CoreDiagnostic

// CreateDiagnostics reads the underlying errors in the error object and creates
// a set of diagnostics that's sorted and can be readily printed.
func CreateDiagnostics(err error) SystemDiagnostic {
	if err == nil {
		return nil
	}
	byCore := map[int]*CoreDiagnostic{}
	for _, err := range flatten(err) {
		core, diag := createDiagnostic(err)
		cd := byCore[core]
		if cd == nil {
			cd = &CoreDiagnostic{Core: core}
			byCore[core] = cd
		}
		cd.Diagnostics = append(cd.Diagnostics, diag)
	}

	sysDiag := make(SystemDiagnostic, 0, len(byCore))
	for _, cd := range byCore {
		// Sort these diagnostics by task slot.
		sort.SliceStable(cd.Diagnostics, func(i, j int) bool {
			ti := cd.Diagnostics[i].Task
			tj := cd.Diagnostics[j].Task
			if ti.Index() != tj.Index() {
				return ti.Index() < tj.Index()
			}
			return ti.Generation() < tj.Generation()
		})
		sysDiag = append(sysDiag, *cd)
	}
	sort.Slice(sysDiag, func(i, j int) bool {
		return sysDiag[i].Core < sysDiag[j].Core
	})
	return sysDiag
}

// flatten expands errors.Join trees into their leaves.
func flatten(err error) []error {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		var errs []error
		for _, err := range multi.Unwrap() {
			if err != nil {
				errs = append(errs, flatten(err)...)
			}
		}
		return errs
	}
	return []error{err}
}

// Extract a diagnostic from the given error, along with the core it belongs
// to.
func createDiagnostic(err error) (int, Diagnostic) {
	var fault *kernel.FaultError
	var stale *kernel.StaleHandleError
	switch {
	case errors.As(err, &fault):
		return fault.Core, Diagnostic{
			Task:  fault.Handle,
			Msg:   fmt.Sprintf("panic: %v", fault.Value),
			Stack: fault.Stack,
		}
	case errors.As(err, &stale):
		return -1, Diagnostic{
			Task: stale.Handle,
			Msg:  fmt.Sprintf("stale handle: slot %d is at generation %d", stale.Handle.Index(), stale.Current),
		}
	default:
		return -1, Diagnostic{Msg: err.Error()}
	}
}

// Write system diagnostics to the given writer with 'wd' as the relative
// working directory for stack traces.
func (sysDiag SystemDiagnostic) WriteTo(w io.Writer, wd string) {
	for _, coreDiag := range sysDiag {
		coreDiag.WriteTo(w, wd)
	}
}

// Write core diagnostics to the given writer.
func (coreDiag CoreDiagnostic) WriteTo(w io.Writer, wd string) {
	if coreDiag.Core >= 0 {
		fmt.Fprintln(w, "# core", coreDiag.Core)
	}
	for _, diag := range coreDiag.Diagnostics {
		diag.WriteTo(w, wd)
	}
}

// Write this diagnostic to the given writer with 'wd' as the relative working
// directory.
func (diag Diagnostic) WriteTo(w io.Writer, wd string) {
	if diag.Task.IsNull() {
		fmt.Fprintln(w, diag.Msg)
	} else {
		fmt.Fprintf(w, "%s: %s\n", diag.Task, diag.Msg)
	}
	if len(diag.Stack) == 0 {
		return
	}
	for _, line := range bytes.Split(bytes.TrimRight(diag.Stack, "\n"), []byte("\n")) {
		fmt.Fprintln(w, "\t"+RelativeStackLine(string(line), wd))
	}
}

// Convert the file path in a goroutine stack line (assumed to be absolute)
// into a relative path if possible. Lines that don't name a file are returned
// unchanged.
func RelativeStackLine(line, wd string) string {
	// Check whether we even have a working directory.
	if wd == "" {
		return line
	}
	trimmed := strings.TrimLeft(line, "\t")
	if !filepath.IsAbs(trimmed) {
		return line
	}
	path, rest, _ := strings.Cut(trimmed, ":")

	// Make the path relative, for easier reading. Paths outside of wd remain
	// absolute.
	relpath, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(relpath, "..") {
		return line
	}
	return line[:len(line)-len(trimmed)] + relpath + ":" + rest
}
