package booking

type Status string

const (
	StatusBooked      Status = "booked"
	StatusConflict    Status = "conflict"
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusError       Status = "error"
)

// Result is what the voice agent receives for a tool call. Speech is read
// aloud as-is.
type Result struct {
	Status        Status   `json:"status"`
	AppointmentID string   `json:"appointmentId,omitempty"`
	ScheduledAt   string   `json:"scheduledAt,omitempty"`
	Speech        string   `json:"speech"`
	Alternatives  []string `json:"alternatives,omitempty"`
}

// ErrorResult is returned to the caller when the tool could not run at all.
func ErrorResult() Result {
	return Result{
		Status: StatusError,
		Speech: "I'm sorry, I couldn't complete that right now. Let me take your details and the clinic will call you back.",
	}
}

// PendingResult answers a redelivery whose first attempt is still running.
func PendingResult() Result {
	return Result{
		Status: StatusError,
		Speech: "I'm still working on that booking. One moment please.",
	}
}
