package association

import (
	"fmt"

	"github.com/backkem/dlms/pkg/acse"
)

// Outcome is the kind of verdict a tier reaches for an AARQ.
type Outcome uint8

const (
	OutcomeRejected Outcome = iota
	OutcomeAccepted
	OutcomePending
)

// String returns the name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeAccepted:
		return "accepted"
	case OutcomePending:
		return "pending"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Verdict is the decision a tier reaches for an AARQ. Level is set for
// accepted and pending verdicts, Diagnostic and Source for rejections.
type Verdict struct {
	Outcome    Outcome
	Level      AccessLevel
	Diagnostic acse.Diagnostic
	Source     acse.Source
}

// Accepted returns a verdict granting level.
func Accepted(level AccessLevel) Verdict {
	return Verdict{Outcome: OutcomeAccepted, Level: level, Diagnostic: acse.DiagnosticSuccess}
}

// Pending returns the verdict of a structurally valid high-level request.
func Pending() Verdict {
	return Verdict{Outcome: OutcomePending, Level: AccessLow, Diagnostic: acse.DiagnosticHighLevel}
}

// Rejected returns a rejection reported by the ACSE service user.
func Rejected(diagnostic acse.Diagnostic) Verdict {
	return Verdict{Outcome: OutcomeRejected, Diagnostic: diagnostic, Source: acse.SourceServiceUser}
}

// rejectedByProvider returns the rejection for an unsupported protocol version.
func rejectedByProvider() Verdict {
	return Verdict{Outcome: OutcomeRejected, Diagnostic: acse.DiagnosticNoReason, Source: acse.SourceServiceProvider}
}

// Result returns the association-result carried in the AARE.
func (v Verdict) Result() acse.Result {
	if v.Outcome == OutcomeRejected {
		return acse.ResultRejectedPermanent
	}
	return acse.ResultAccepted
}

// status returns the context status the verdict leads to.
func (v Verdict) status() Status {
	switch v.Outcome {
	case OutcomeAccepted:
		return StatusAssociated
	case OutcomePending:
		return StatusPending
	default:
		return StatusNonAssociated
	}
}

// String returns a readable description of the verdict.
func (v Verdict) String() string {
	switch v.Outcome {
	case OutcomeRejected:
		return fmt.Sprintf("rejected(%s, %s)", v.Diagnostic, v.Source)
	default:
		return fmt.Sprintf("%s(%s)", v.Outcome, v.Level)
	}
}
