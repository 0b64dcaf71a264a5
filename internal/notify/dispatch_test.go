package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jacobpro/calpol/internal/notify"
)

type fakeEmailSink struct {
	calls   int
	subject string
	body    string
	to      []string
	err     error
}

func (f *fakeEmailSink) SendEmail(subject, body string, to []string) error {
	f.calls++
	f.subject, f.body, f.to = subject, body, to
	return f.err
}

type fakeSMSSink struct {
	calls int
	body  string
	to    []string
	err   error
}

func (f *fakeSMSSink) SendSMS(ctx context.Context, body string, recipients []string) error {
	f.calls++
	f.body, f.to = body, recipients
	return f.err
}

func TestDispatcher_NotifyFailing_NoOpOnEmpty(t *testing.T) {
	email := &fakeEmailSink{}
	sms := &fakeSMSSink{}
	d := &notify.Dispatcher{Email: email, SMS: sms}

	if err := d.NotifyFailing(context.Background(), nil, notify.Targets{Emails: []string{"a@example.com"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.calls != 0 || sms.calls != 0 {
		t.Errorf("expected no sink calls for empty batch, email=%d sms=%d", email.calls, sms.calls)
	}
}

func TestDispatcher_NotifyFailing_SendsBoth(t *testing.T) {
	email := &fakeEmailSink{}
	sms := &fakeSMSSink{}
	d := &notify.Dispatcher{Email: email, SMS: sms}

	probes := []notify.FailingProbe{{Name: "homepage", Err: errors.New("refused")}}
	targets := notify.Targets{Emails: []string{"a@example.com"}, Phones: []string{"+441234567890"}}

	if err := d.NotifyFailing(context.Background(), probes, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.calls != 1 || sms.calls != 1 {
		t.Fatalf("email.calls=%d sms.calls=%d, want 1 each", email.calls, sms.calls)
	}
	if email.subject != notify.FailureSubject {
		t.Errorf("subject = %q, want %q", email.subject, notify.FailureSubject)
	}
}

func TestDispatcher_NotifyFailing_AggregatesSinkErrors(t *testing.T) {
	email := &fakeEmailSink{err: errors.New("smtp down")}
	sms := &fakeSMSSink{err: errors.New("gateway down")}
	d := &notify.Dispatcher{Email: email, SMS: sms}

	probes := []notify.FailingProbe{{Name: "homepage", Err: errors.New("refused")}}
	targets := notify.Targets{Emails: []string{"a@example.com"}, Phones: []string{"+441234567890"}}

	err := d.NotifyFailing(context.Background(), probes, targets)
	if err == nil {
		t.Fatal("expected aggregated error from both sinks")
	}
}

func TestDispatcher_NotifyPassing_SkipsSinksWithNoTargets(t *testing.T) {
	email := &fakeEmailSink{}
	sms := &fakeSMSSink{}
	d := &notify.Dispatcher{Email: email, SMS: sms}

	if err := d.NotifyPassing(context.Background(), []string{"homepage"}, notify.Targets{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email.calls != 0 || sms.calls != 0 {
		t.Errorf("expected no sink calls with no targets, email=%d sms=%d", email.calls, sms.calls)
	}
}
