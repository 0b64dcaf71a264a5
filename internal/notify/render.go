// Package notify renders and dispatches probe-transition notifications: one
// SMS and one email per batch of probes that just started or stopped
// failing, via the EmailSink and SMSSink seams.
package notify

import (
	"fmt"
	"strings"
)

// maxSMSChars bounds an SMS body; gateways bill (and some carriers drop)
// anything longer, so a too-long body is truncated with an ellipsis rather
// than rejected outright.
const maxSMSChars = 70

// FailingProbe is one probe that just transitioned into a failing state,
// along with the error that tripped it.
type FailingProbe struct {
	Name string
	Err  error
}

// truncateSMS shortens body to maxSMSChars, replacing the tail with "..." if
// it doesn't fit, operating on runes so multi-byte characters aren't split.
func truncateSMS(body string) string {
	runes := []rune(body)
	if len(runes) <= maxSMSChars {
		return body
	}
	return string(runes[:maxSMSChars-3]) + "..."
}

// SMSFailureBody renders the SMS body for one or more probes that just
// started failing.
func SMSFailureBody(probes []FailingProbe) string {
	var b strings.Builder
	b.WriteString("Calpol: ")
	if len(probes) == 1 {
		fmt.Fprintf(&b, "Test %s failed: %s", probes[0].Name, probes[0].Err)
	} else {
		names := make([]string, len(probes))
		for i, p := range probes {
			names[i] = p.Name
		}
		fmt.Fprintf(&b, "%d tests failed, including: %s", len(probes), strings.Join(names, ", "))
	}
	return truncateSMS(b.String())
}

// SMSPassingBody renders the SMS body for one or more probes that just
// recovered.
func SMSPassingBody(names []string) string {
	var b strings.Builder
	b.WriteString("Calpol: ")
	if len(names) == 1 {
		fmt.Fprintf(&b, "Test %s now passing", names[0])
	} else {
		fmt.Fprintf(&b, "%d tests passing, including: %s", len(names), strings.Join(names, ", "))
	}
	return truncateSMS(b.String())
}

// EmailFailureBody renders the email body listing every probe that just
// started failing, with its error.
func EmailFailureBody(probes []FailingProbe) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Calpol: %d tests failed\n\n", len(probes))
	for _, p := range probes {
		fmt.Fprintf(&b, "%s: %s\n\n", p.Name, p.Err)
	}
	return b.String()
}

// EmailPassingBody renders the email body listing every probe that just
// recovered.
func EmailPassingBody(names []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Calpol: %d tests now passing\n\n", len(names))
	for _, n := range names {
		fmt.Fprintf(&b, "%s\n", n)
	}
	return b.String()
}

const (
	FailureSubject = "Calpol Test Failures"
	PassingSubject = "Calpol Tests Passing"
)
