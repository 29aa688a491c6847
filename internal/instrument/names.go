package instrument

import (
	"strings"
)

// Prefix marks every symbol the pass creates. Functions carrying it are
// never scanned for call sites.
const Prefix = "__printflog_"

// Routines the rewritten program calls
const (
	TargetRoutine = "printf"
	LogRoutine    = "fprintf"
	OpenRoutine   = "fopen"
	CloseRoutine  = "fclose"
)

// EntryFunction is where the log is opened and closed
const EntryFunction = "main"

// Runtime behaviour of the generated helpers
const (
	LogPath        = "log.txt"
	LogMode        = "a"
	FailureMessage = "Failed to open 'log.txt'. Logging of printf() calls disabled.\n"
)

// Names of the generated symbols
const (
	LogHandleName = Prefix + "logfile"
	OpenLogName   = Prefix + "open_log"
	CloseLogName  = Prefix + "close_log"
)

// IsReserved reports whether name belongs to code generated by the pass
func IsReserved(name string) bool {
	return strings.HasPrefix(name, Prefix)
}
