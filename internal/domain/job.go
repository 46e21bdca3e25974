package domain

// JobState is the lifecycle position of the station's single inspection job
type JobState string

const (
	JobStateIdle            JobState = "IDLE"
	JobStateCapturing       JobState = "CAPTURING"
	JobStateValidating      JobState = "VALIDATING"
	JobStateRetryCapturing  JobState = "RETRY_CAPTURING"
	JobStateRetryValidating JobState = "RETRY_VALIDATING"
	JobStateDone            JobState = "DONE"
)

// InFlight reports whether a job in this state still owns the station
func (s JobState) InFlight() bool {
	switch s {
	case JobStateCapturing, JobStateValidating, JobStateRetryCapturing, JobStateRetryValidating:
		return true
	default:
		return false
	}
}

// Poll status codes reported to the client
const (
	PollStatusNoJob      = "-1"
	PollStatusInProgress = "0"
	PollStatusTerminal   = "1"
)

// Command codes of the printcheck endpoint
const (
	CmdPoll  = 2
	CmdStart = 3
)
