package domain

const (
	// Broker topology
	ExchangeName = "books"
	ExchangeKind = "fanout"
	QueueName    = "txt"
	BindingKey   = ""

	// Job Statuses
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"

	// Notification Types
	MsgTypeTxtComplete = "txt_complete"
	MsgTypeTxtFailed   = "txt_failed"

	// Redis Key Patterns
	RedisKeyActiveDirs = "txt:active_dirs"
	RedisKeyJobPages   = "txt:job:%s:pages"
)

// Mode selects how the extraction engine obtains page text.
type Mode string

const (
	ModeOCR  Mode = "ocr"
	ModeText Mode = "text"
)

func (m Mode) Valid() bool {
	return m == ModeOCR || m == ModeText
}

// AckPolicy decides when an accepted delivery is acknowledged.
type AckPolicy string

const (
	// AckOnReceipt acks as soon as the event is accepted. A crash mid-job loses the job.
	AckOnReceipt AckPolicy = "ack-on-receipt"
	// AckOnCompletion holds the delivery until the job reaches a terminal state.
	AckOnCompletion AckPolicy = "ack-on-completion"
)

func (p AckPolicy) Valid() bool {
	return p == AckOnReceipt || p == AckOnCompletion
}
