package ipc

import "time"

// StartRequest asks the daemon to begin polling.
type StartRequest struct{}

// StartResponse reports the result of a start request.
type StartResponse struct {
	Started bool
	Message string
}

// StopRequest asks the daemon to stop polling. The zero value requests a
// graceful stop that lets an in-flight cycle finish; Force abandons it.
type StopRequest struct {
	Force bool
}

// StopResponse confirms the daemon stopped.
type StopResponse struct {
	Stopped bool
}

// StatusRequest asks for the daemon's current state.
type StatusRequest struct{}

// StatusResponse carries a snapshot of daemon, health, and store state.
type StatusResponse struct {
	Running             bool
	DaemonState         string
	PID                 int
	StartedAt           time.Time
	LockAcquiredAt      time.Time
	NextCycleAt         time.Time
	HealthStatus        string
	ConsecutiveFailures int
	CyclesRun           int64
	ItemsDiscovered     int64
	DigestsSent         int64
	Errors              int64
	LastCycleAt         time.Time
	LastSuccessAt       time.Time
	LastStrategy        string
	LastError           string
	PreferredStrategy   string
	SeenTotal           int64
	SeenUnnotified      int64
	LastSeenAt          time.Time
	StoreDBPath         string
	LockPath            string
}

// RunOnceRequest triggers a single polling cycle immediately.
type RunOnceRequest struct{}

// RunOnceResponse summarizes the cycle that ran.
type RunOnceResponse struct {
	CycleID       string
	Result        string
	Strategy      string
	ItemsListed   int
	ItemsNew      int
	ItemsNotified int
	DurationMS    int64
	Error         string
}

// LogTailRequest fetches log lines starting at Offset. A negative offset
// means "last Limit lines".
type LogTailRequest struct {
	Offset     int64
	Limit      int
	Follow     bool
	WaitMillis int64
}

// LogTailResponse returns the fetched lines and the next read offset.
type LogTailResponse struct {
	Lines  []string
	Offset int64
}

// TestNotificationRequest asks the daemon to send a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the test message was sent.
type TestNotificationResponse struct {
	Sent    bool
	Message string
}
