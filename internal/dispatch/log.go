package dispatch

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogConsumer writes each event to the process log.
type LogConsumer struct {
	Log logrus.FieldLogger
}

// Name implements Consumer.
func (LogConsumer) Name() string { return "log" }

// Deliver implements Consumer.
func (c LogConsumer) Deliver(_ context.Context, e Event) error {
	c.Log.WithFields(logrus.Fields{
		"sign":       e.SignName,
		"category":   e.Category,
		"confidence": e.Confidence,
		"session_id": e.SessionID,
		"side":       e.Side,
	}).Info("sign recognized")
	return nil
}
