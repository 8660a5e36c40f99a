package logger

// Standard structured field keys. Use these instead of ad-hoc strings so JSON
// logs aggregate cleanly across stages.
const (
	// FieldRunID identifies one pipeline run (UUID)
	FieldRunID = "run_id"

	// FieldStage is the enrichment stage name
	FieldStage = "stage"

	// FieldHost is the cluster root URL with credentials redacted
	FieldHost = "host"

	// FieldURL is a request URL with credentials redacted
	FieldURL = "url"

	// FieldStatus is the HTTP status code
	FieldStatus = "status"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldDuration is an elapsed time
	FieldDuration = "duration"
)
