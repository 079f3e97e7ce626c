package taskname

const (
	// Notification tasks
	NotificationSend = "notification:send"
)
