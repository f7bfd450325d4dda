package access

import (
	"errors"
	"fmt"
	"strings"

	attrs "github.com/virtru/access-pdp/attributes"
)

// Rule is the closed set of per-namespace combination rules.
type Rule int

const (
	// RuleUnknown marks a namespace the attribute authority does not know.
	// Distinct from a cache miss; an unknown namespace always denies.
	RuleUnknown Rule = iota
	RuleAllOf
	RuleAnyOf
	RuleHierarchy
)

func (r Rule) String() string {
	switch r {
	case RuleAllOf:
		return "allOf"
	case RuleAnyOf:
		return "anyOf"
	case RuleHierarchy:
		return "hierarchy"
	}
	return "unknown"
}

// AttributePolicy is the evaluation rule for one attribute namespace.
// Order is present iff Rule is RuleHierarchy and is uppercase-normalized;
// index 0 is the highest clearance.
type AttributePolicy struct {
	Namespace string
	Rule      Rule
	Order     []string
}

// Unknown is the sentinel policy for namespaces the authority does not
// recognize.
func Unknown(namespace string) AttributePolicy {
	return AttributePolicy{Namespace: namespace, Rule: RuleUnknown}
}

// policyFromDefinition converts the attribute authority's wire definition
// into an evaluation policy.
func policyFromDefinition(def attrs.AttributeDefinition) (AttributePolicy, error) {
	namespace := fmt.Sprintf("%s/attr/%s", def.Authority, def.Name)
	p := AttributePolicy{Namespace: namespace}
	switch def.Rule {
	case "allOf":
		p.Rule = RuleAllOf
	case "anyOf":
		p.Rule = RuleAnyOf
	case "hierarchy":
		p.Rule = RuleHierarchy
		if len(def.Order) == 0 {
			return p, errors.Join(ErrInvalidAttribute,
				fmt.Errorf("hierarchy rule for %s has no order", namespace))
		}
		p.Order = make([]string, len(def.Order))
		for i, v := range def.Order {
			p.Order[i] = strings.ToUpper(v)
		}
	default:
		return p, errors.Join(ErrInvalidAttribute,
			fmt.Errorf("unknown rule %q for %s", def.Rule, namespace))
	}
	return p, nil
}

// orderIndex returns the clearance index of value in the hierarchy order,
// or -1 when absent.
func (p AttributePolicy) orderIndex(value string) int {
	needle := strings.ToUpper(value)
	for i, v := range p.Order {
		if v == needle {
			return i
		}
	}
	return -1
}
