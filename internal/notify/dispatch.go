package notify

import (
	"context"
	"errors"
)

// Targets is the set of recipients a Dispatcher notifies.
type Targets struct {
	Emails []string
	Phones []string
}

// Dispatcher sends one SMS and one email per batch of probes that just
// started or stopped failing.
type Dispatcher struct {
	Email EmailSink
	SMS   SMSSink
}

// NotifyFailing sends the failure notification for probes that just crossed
// their failure threshold. Safe to call with an empty slice (no-op).
func (d *Dispatcher) NotifyFailing(ctx context.Context, probes []FailingProbe, targets Targets) error {
	if len(probes) == 0 {
		return nil
	}
	var errs []error
	if d.SMS != nil && len(targets.Phones) > 0 {
		if err := d.SMS.SendSMS(ctx, SMSFailureBody(probes), targets.Phones); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Email != nil && len(targets.Emails) > 0 {
		if err := d.Email.SendEmail(FailureSubject, EmailFailureBody(probes), targets.Emails); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyPassing sends the recovery notification for probes that just
// dropped out of a failing state. Safe to call with an empty slice (no-op).
func (d *Dispatcher) NotifyPassing(ctx context.Context, names []string, targets Targets) error {
	if len(names) == 0 {
		return nil
	}
	var errs []error
	if d.SMS != nil && len(targets.Phones) > 0 {
		if err := d.SMS.SendSMS(ctx, SMSPassingBody(names), targets.Phones); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Email != nil && len(targets.Emails) > 0 {
		if err := d.Email.SendEmail(PassingSubject, EmailPassingBody(names), targets.Emails); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
