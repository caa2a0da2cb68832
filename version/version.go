// Package version haelt die Build-Version; sie wird beim Release ueber
// -ldflags gesetzt.
package version

var Version string = "0.0.0"
