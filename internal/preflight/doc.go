// Package preflight provides the FatalStartup checks DawnSearch runs before
// opening its page store or sockets: data-directory sanity and listener
// bindability, surfaced as a Go-native CheckResult{Name, Status, Message}
// report rather than a raw panic three layers into startup.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory (a fixed 4GB estimate against the 1GB minimum; system memory
//     is not measured)
//   - Write permissions in the data directory
//   - File descriptor limits (minimum 1024)
//   - UDP/web listen addresses are bindable
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg.DataDir)
//	results = append(results, checker.RunNetwork(ctx, cfg.UDPListenAddress, cfg.WebListenAddress)...)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
