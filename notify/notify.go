// Package notify delivers tracker notifications to the user.
package notify

import (
	"context"
	"errors"
	"log"

	"github.com/ArildWaldan/suivi-sap/tracker"
)

// Log writes notifications to the standard logger.
type Log struct{}

func (Log) Notify(_ context.Context, n tracker.Notification) error {
	switch n.Kind {
	case tracker.NotifySuccess:
		log.Printf("[Notify] SAP number %s found for order %s", n.DocumentNumber, n.OrderNumber)
	case tracker.NotifyWarning:
		log.Printf("[Notify] Order %s still has no SAP number, investigation may be needed", n.OrderNumber)
	default:
		log.Printf("[Notify] %s for order %s", n.Kind, n.OrderNumber)
	}
	return nil
}

// Multi fans a notification out to every sink. All sinks are tried; their
// errors are joined.
type Multi []tracker.Notifier

func (m Multi) Notify(ctx context.Context, n tracker.Notification) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
