package kafka

// Topic definitions for scanner event streaming
const (
	// Scan lifecycle
	TopicScanStarted  = "scans.started"
	TopicScanFinished = "scans.finished"

	// Signal events
	TopicAlertEmitted  = "alerts.emitted"
	TopicSymbolSkipped = "alerts.skipped"

	// Post-hoc outcomes
	TopicAlertGraded = "alerts.graded"
)
