package access

import (
	"fmt"

	"github.com/opentdf/kas/pkg/tdf3"
)

// Decision is the adjudicator outcome. A deny carries structured reasons
// for the audit log; the wire message stays generic.
type Decision struct {
	Allow   bool
	Reasons []DenyReason
}

type DenyReason struct {
	Namespace string   `json:"namespace"`
	Rule      string   `json:"rule"`
	Data      []string `json:"data"`
	Entity    []string `json:"entity"`
}

func (d DenyReason) String() string {
	return fmt.Sprintf("namespace %s rule %s data %v entity %v", d.Namespace, d.Rule, d.Data, d.Entity)
}

// Adjudicate decides access for a policy against the requester's
// entitlements. It is pure: policies carries every namespace the policy
// references, resolved ahead of time, and no I/O happens here. Namespaces
// are conjunctive; any namespace failing its rule denies.
func Adjudicate(policy *tdf3.Policy, claims *Claims, policies map[string]AttributePolicy) Decision {
	if len(policy.Body.Dissem) > 0 && !contains(policy.Body.Dissem, claims.Subject) {
		return deny(DenyReason{
			Namespace: "dissem",
			Rule:      "dissem",
			Data:      policy.Body.Dissem,
			Entity:    []string{claims.Subject},
		})
	}

	dataValues := make(map[string][]string)
	for _, attr := range policy.Body.DataAttributes {
		ns := attr.Namespace()
		dataValues[ns] = append(dataValues[ns], attr.Value)
	}

	decision := Decision{Allow: true}
	for _, ns := range policy.Namespaces() {
		ap := policies[ns]
		entityValues := claims.EntityValues(ns)
		if !ruleAllows(ap, dataValues[ns], entityValues) {
			decision.Allow = false
			decision.Reasons = append(decision.Reasons, DenyReason{
				Namespace: ns,
				Rule:      ap.Rule.String(),
				Data:      dataValues[ns],
				Entity:    entityValues,
			})
		}
	}
	return decision
}

func ruleAllows(ap AttributePolicy, dataValues, entityValues []string) bool {
	switch ap.Rule {
	case RuleAllOf:
		for _, dv := range dataValues {
			if !contains(entityValues, dv) {
				return false
			}
		}
		return true
	case RuleAnyOf:
		for _, dv := range dataValues {
			if contains(entityValues, dv) {
				return true
			}
		}
		return len(dataValues) == 0
	case RuleHierarchy:
		return hierarchyAllows(ap, dataValues, entityValues)
	}
	// RuleUnknown fails closed.
	return false
}

// hierarchyAllows grants access when the entity's best clearance is at
// least the policy's strictest requirement. Index 0 is the highest
// clearance; values absent from the order deny.
func hierarchyAllows(ap AttributePolicy, dataValues, entityValues []string) bool {
	if len(entityValues) == 0 {
		return false
	}
	dataBest := -1
	for _, dv := range dataValues {
		idx := ap.orderIndex(dv)
		if idx == -1 {
			return false
		}
		if dataBest == -1 || idx < dataBest {
			dataBest = idx
		}
	}
	entityBest := -1
	for _, ev := range entityValues {
		idx := ap.orderIndex(ev)
		if idx == -1 {
			return false
		}
		if entityBest == -1 || idx < entityBest {
			entityBest = idx
		}
	}
	return entityBest <= dataBest
}

func deny(reasons ...DenyReason) Decision {
	return Decision{Allow: false, Reasons: reasons}
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}
