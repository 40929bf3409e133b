package chathub

// Delivery outcomes of an own message.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// Recorder receives session events for metrics.
type Recorder interface {
	SessionOpened()
	SessionClosed()
	MessageDelivered(outcome string)
	BroadcastReceived(result BroadcastResult)
	PublishFailed()
}

type noopRecorder struct{}

func (noopRecorder) SessionOpened()                    {}
func (noopRecorder) SessionClosed()                    {}
func (noopRecorder) MessageDelivered(string)           {}
func (noopRecorder) BroadcastReceived(BroadcastResult) {}
func (noopRecorder) PublishFailed()                    {}
