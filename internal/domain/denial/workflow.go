package denial

import "github.com/revcycle/denialengine/internal/platform/fault"

// Event is a workflow trigger applied to an Appeal.
type Event string

const (
	EventSubmitForReview   Event = "submit_for_review"
	EventApprove           Event = "approve"
	EventFile              Event = "file"
	EventAcknowledge       Event = "acknowledge"
	EventPayerRequestsInfo Event = "payer_requests_info"
	EventInfoProvided      Event = "info_provided"
	EventPayerResponds     Event = "payer_responds"
	EventDeadlinePassed    Event = "deadline_passed"
	EventWithdraw          Event = "withdraw"
	EventClose             Event = "close"
)

// transitions is the full appeal state machine. Withdraw is legal from
// every non-terminal state; additional_info_requested cycles back to
// pending_response once the payer's request is satisfied.
var transitions = map[AppealStatus]map[Event]AppealStatus{
	StatusDraft: {
		EventSubmitForReview: StatusPendingReview,
		EventWithdraw:        StatusClosed,
	},
	StatusPendingReview: {
		EventApprove:  StatusApprovedForSubmission,
		EventWithdraw: StatusClosed,
	},
	StatusApprovedForSubmission: {
		EventFile:     StatusSubmitted,
		EventWithdraw: StatusClosed,
	},
	StatusSubmitted: {
		EventAcknowledge:       StatusPendingResponse,
		EventPayerRequestsInfo: StatusAdditionalInfoRequested,
		EventPayerResponds:     StatusResolved,
		EventWithdraw:          StatusClosed,
	},
	StatusPendingResponse: {
		EventPayerResponds:     StatusResolved,
		EventPayerRequestsInfo: StatusAdditionalInfoRequested,
		EventDeadlinePassed:    StatusResolved,
		EventWithdraw:          StatusClosed,
	},
	StatusAdditionalInfoRequested: {
		EventInfoProvided: StatusPendingResponse,
		EventWithdraw:     StatusClosed,
	},
	StatusResolved: {
		EventClose:    StatusClosed,
		EventWithdraw: StatusClosed,
	},
	StatusClosed: {},
}

// NextStatus resolves the state the machine moves to when event fires
// from the given status. Illegal events return InvalidTransitionError
// and must leave the appeal untouched.
func NextStatus(from AppealStatus, event Event) (AppealStatus, error) {
	to, ok := transitions[from][event]
	if !ok {
		return "", fault.InvalidTransition(string(from), string(event))
	}
	return to, nil
}

// LegalEvents lists the events accepted from the given status. Used by
// callers that surface available actions.
func LegalEvents(from AppealStatus) []Event {
	evs := make([]Event, 0, len(transitions[from]))
	for ev := range transitions[from] {
		evs = append(evs, ev)
	}
	return evs
}
