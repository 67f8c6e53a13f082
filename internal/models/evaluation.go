package models

// Outcome is the kind of an auto-pay decision.
type Outcome string

const (
	OutcomeApproved      Outcome = "approved"
	OutcomeDenied        Outcome = "denied"
	OutcomeNeedsApproval Outcome = "needs_approval"
)

// Denial reasons returned by the evaluator.
const (
	ReasonDisabled          = "Auto-pay is disabled"
	ReasonDailyLimitExceeds = "Would exceed daily limit"
	ReasonPeerLimitExceeds  = "Would exceed peer limit"
)

// EvaluationResult is the decision for a candidate payment. RuleID and
// RuleName are set for OutcomeApproved, Reason for OutcomeDenied.
type EvaluationResult struct {
	Outcome  Outcome `json:"outcome"`
	RuleID   string  `json:"rule_id,omitempty"`
	RuleName string  `json:"rule_name,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

func Approved(ruleID, ruleName string) EvaluationResult {
	return EvaluationResult{Outcome: OutcomeApproved, RuleID: ruleID, RuleName: ruleName}
}

func Denied(reason string) EvaluationResult {
	return EvaluationResult{Outcome: OutcomeDenied, Reason: reason}
}

func NeedsApproval() EvaluationResult {
	return EvaluationResult{Outcome: OutcomeNeedsApproval}
}

func (r EvaluationResult) IsApproved() bool {
	return r.Outcome == OutcomeApproved
}
