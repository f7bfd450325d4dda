package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentdf/kas/pkg/tdf3"
)

const classificationNS = "https://a.example/attr/Classification"

func dataPolicy(t *testing.T, dissem []string, uris ...string) *tdf3.Policy {
	t.Helper()
	policy := &tdf3.Policy{}
	policy.Body.Dissem = dissem
	for _, uri := range uris {
		attr, err := tdf3.ParseAttribute(uri)
		require.NoError(t, err)
		policy.Body.DataAttributes = append(policy.Body.DataAttributes, *attr)
	}
	return policy
}

func entityClaims(t *testing.T, subject string, uris ...string) *Claims {
	t.Helper()
	ent := Entitlement{EntityID: subject}
	for _, uri := range uris {
		attr, err := tdf3.ParseAttribute(uri)
		require.NoError(t, err)
		ent.Attributes = append(ent.Attributes, *attr)
	}
	return &Claims{Subject: subject, Entitlements: []Entitlement{ent}}
}

func TestAdjudicateAllOf(t *testing.T) {
	policies := map[string]AttributePolicy{
		classificationNS: {Namespace: classificationNS, Rule: RuleAllOf},
	}
	policy := dataPolicy(t, nil,
		classificationNS+"/value/A",
		classificationNS+"/value/B")

	both := entityClaims(t, "alice", classificationNS+"/value/A", classificationNS+"/value/B")
	assert.True(t, Adjudicate(policy, both, policies).Allow)

	one := entityClaims(t, "alice", classificationNS+"/value/A")
	decision := Adjudicate(policy, one, policies)
	assert.False(t, decision.Allow)
	require.Len(t, decision.Reasons, 1)
	assert.Equal(t, classificationNS, decision.Reasons[0].Namespace)
	assert.Equal(t, "allOf", decision.Reasons[0].Rule)
}

func TestAdjudicateAnyOf(t *testing.T) {
	policies := map[string]AttributePolicy{
		classificationNS: {Namespace: classificationNS, Rule: RuleAnyOf},
	}
	policy := dataPolicy(t, nil,
		classificationNS+"/value/A",
		classificationNS+"/value/B")

	one := entityClaims(t, "alice", classificationNS+"/value/B")
	assert.True(t, Adjudicate(policy, one, policies).Allow)

	none := entityClaims(t, "alice", classificationNS+"/value/C")
	assert.False(t, Adjudicate(policy, none, policies).Allow)
}

func TestAdjudicateHierarchy(t *testing.T) {
	policies := map[string]AttributePolicy{
		classificationNS: {
			Namespace: classificationNS,
			Rule:      RuleHierarchy,
			Order:     []string{"TS", "S", "C", "U"},
		},
	}
	secret := entityClaims(t, "alice", classificationNS+"/value/S")

	for _, value := range []string{"S", "C", "U"} {
		policy := dataPolicy(t, nil, classificationNS+"/value/"+value)
		assert.True(t, Adjudicate(policy, secret, policies).Allow, "data %s", value)
	}

	topSecret := dataPolicy(t, nil, classificationNS+"/value/TS")
	assert.False(t, Adjudicate(topSecret, secret, policies).Allow)

	// Values outside the order deny, whichever side carries them.
	offTheBooks := dataPolicy(t, nil, classificationNS+"/value/X")
	assert.False(t, Adjudicate(offTheBooks, secret, policies).Allow)
	rogue := entityClaims(t, "alice", classificationNS+"/value/X")
	data := dataPolicy(t, nil, classificationNS+"/value/U")
	assert.False(t, Adjudicate(data, rogue, policies).Allow)
}

func TestAdjudicateUnknownNamespace(t *testing.T) {
	policies := map[string]AttributePolicy{
		"https://x/attr/Foo": Unknown("https://x/attr/Foo"),
	}
	policy := dataPolicy(t, nil, "https://x/attr/Foo/value/Bar")
	claims := entityClaims(t, "alice", "https://x/attr/Foo/value/Bar")

	decision := Adjudicate(policy, claims, policies)
	assert.False(t, decision.Allow)
	require.Len(t, decision.Reasons, 1)
	assert.Equal(t, "unknown", decision.Reasons[0].Rule)
}

func TestAdjudicateDissem(t *testing.T) {
	policies := map[string]AttributePolicy{}

	listed := dataPolicy(t, []string{"alice", "bob"})
	assert.True(t, Adjudicate(listed, entityClaims(t, "alice"), policies).Allow)
	assert.False(t, Adjudicate(listed, entityClaims(t, "mallory"), policies).Allow)

	// An empty dissem list does not restrict.
	open := dataPolicy(t, nil)
	assert.True(t, Adjudicate(open, entityClaims(t, "anyone"), policies).Allow)
}

func TestAdjudicateConjunctiveNamespaces(t *testing.T) {
	needNS := "https://a.example/attr/NeedToKnow"
	policies := map[string]AttributePolicy{
		classificationNS: {
			Namespace: classificationNS,
			Rule:      RuleHierarchy,
			Order:     []string{"TS", "S", "C", "U"},
		},
		needNS: {Namespace: needNS, Rule: RuleAllOf},
	}
	policy := dataPolicy(t, nil,
		classificationNS+"/value/C",
		needNS+"/value/SIGINT")

	cleared := entityClaims(t, "alice",
		classificationNS+"/value/S",
		needNS+"/value/SIGINT")
	assert.True(t, Adjudicate(policy, cleared, policies).Allow)

	partial := entityClaims(t, "alice", classificationNS+"/value/S")
	assert.False(t, Adjudicate(policy, partial, policies).Allow)
}
