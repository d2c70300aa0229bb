package pipeline

import "time"

// Limits applied by the service. The HTTP layer and CLI share them.
const (
	// DefaultMaxUploadBytes caps one uploaded artifact.
	DefaultMaxUploadBytes int64 = 20 << 20

	// MaxErrorMessageLen bounds the error stored on a failed statement.
	MaxErrorMessageLen = 1000

	// StatusLogLimit is how many recent parse logs Status returns.
	StatusLogLimit = 20

	// CounterpartyListLimit bounds ListCounterparties.
	CounterpartyListLimit = 200

	// DashboardTopCounterparties is the size of the KPI top list.
	DashboardTopCounterparties = 5

	// MaxAliasLen bounds a narration alias written by Promote.
	MaxAliasLen = 200

	// maxLoggedNotes bounds the skipped/warning parse logs of one parse.
	maxLoggedNotes = 200

	// maxNoteInput bounds the offending input copied into a parse log.
	maxNoteInput = 200

	// outcomeWriteTimeout bounds recording a failed parse after the
	// caller's context has ended.
	outcomeWriteTimeout = 10 * time.Second
)

// Parse log levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Tabular import modes reported in ParseResult.Mode next to the parser's
// header and buffer modes.
const (
	ModeCSV  = "csv"
	ModeXLSX = "xlsx"
)

const pastedFilename = "pasted-statement.txt"
