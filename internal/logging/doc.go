// Package logging provides structured, rotating file logging for a DawnSearch
// node. When the debug config key is above 0, comprehensive logs are written
// to ~/.dawnsearch/logs/ for debugging a peer's search and replication traffic.
//
// By default (debug = 0), logging is minimal and goes to stderr only.
package logging
