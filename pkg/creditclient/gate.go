package creditclient

import "careerkit-credits/pkg/catalog"

type DecisionState string

const (
	DecisionLoading DecisionState = "loading"
	DecisionUpgrade DecisionState = "upgrade"
	DecisionAllowed DecisionState = "allowed"
)

const (
	ReasonUnavailable         = "balance_unavailable"
	ReasonUnknownFeature      = "unknown_feature"
	ReasonNotInPlan           = "feature_not_in_plan"
	ReasonInactive            = "subscription_inactive"
	ReasonInsufficientCredits = "insufficient_credits"
)

// Decision is what a gated UI element should show for one feature.
type Decision struct {
	State     DecisionState
	Reason    string
	Cost      int
	Remaining int
}

func (d Decision) Allowed() bool { return d.State == DecisionAllowed }

// Gate decides whether feature may be used on the cached balance.
func (s *Store) Gate(feature string) Decision {
	return decide(s.Snapshot(), feature)
}

// decide reads only snap so that one decision never mixes two cache states.
func decide(snap Snapshot, feature string) Decision {
	if snap.Loading {
		return Decision{State: DecisionLoading}
	}

	f, ok := catalog.LookupFeature(feature)
	if !ok {
		return Decision{State: DecisionUpgrade, Reason: ReasonUnknownFeature}
	}
	d := Decision{State: DecisionUpgrade, Cost: f.Cost}

	sub := snap.Subscription
	if sub == nil {
		d.Reason = ReasonUnavailable
		return d
	}
	d.Remaining = sub.RemainingCredits

	switch {
	case !hasFeature(sub, feature):
		d.Reason = ReasonNotInPlan
	case !sub.IsActive:
		d.Reason = ReasonInactive
	case sub.RemainingCredits < f.Cost:
		d.Reason = ReasonInsufficientCredits
	default:
		d.State = DecisionAllowed
	}
	return d
}
