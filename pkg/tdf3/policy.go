package tdf3

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Policy is the data policy bound to a wrapped key. RawCanonical holds the
// base64 policy exactly as received; that byte sequence is the HMAC message
// for the policy binding and must never be re-serialized. The uuid is an
// opaque client-chosen identifier, not necessarily RFC 4122.
type Policy struct {
	UUID string `json:"uuid"`
	Body Body   `json:"body"`

	RawCanonical string `json:"-"`
}

type Body struct {
	DataAttributes []Attribute `json:"dataAttributes"`
	Dissem         []string    `json:"dissem"`
}

var ErrPolicyDecode = errors.New("unable to decode policy")

// ParsePolicy builds a Policy from the base64 canonical JSON blob carried in
// a rewrap or upsert request.
func ParsePolicy(rawCanonical string) (*Policy, error) {
	raw, err := base64.StdEncoding.DecodeString(rawCanonical)
	if err != nil {
		return nil, errors.Join(ErrPolicyDecode, err)
	}
	policy := &Policy{RawCanonical: rawCanonical}
	if err := json.Unmarshal(raw, policy); err != nil {
		return nil, errors.Join(ErrPolicyDecode, err)
	}
	return policy, nil
}

// Namespaces returns the distinct attribute namespaces referenced by the
// policy, in first-seen order.
func (p *Policy) Namespaces() []string {
	seen := make(map[string]bool)
	var namespaces []string
	for _, attr := range p.Body.DataAttributes {
		ns := attr.Namespace()
		if !seen[ns] {
			seen[ns] = true
			namespaces = append(namespaces, ns)
		}
	}
	return namespaces
}

// Attribute is one data attribute instance, addressed by its canonical URI
// scheme://authority/attr/<name>/value/<value>. Namespace comparisons are
// case sensitive.
type Attribute struct {
	URI         string
	Authority   string
	Name        string
	Value       string
	DisplayName string
}

var (
	ErrAttributeURI = errors.New("illegal attribute uri")

	attributePattern = regexp.MustCompile(
		`^(https?://[\w.:-]+)/attr/([^/\s]+)/value/([^/\s]+)$`)
)

// ParseAttribute validates and splits a canonical attribute URI.
func ParseAttribute(uri string) (*Attribute, error) {
	m := attributePattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, fmt.Errorf("%w: [%s]", ErrAttributeURI, uri)
	}
	name, err := url.PathUnescape(m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: [%s]", ErrAttributeURI, uri)
	}
	value, err := url.PathUnescape(m[3])
	if err != nil {
		return nil, fmt.Errorf("%w: [%s]", ErrAttributeURI, uri)
	}
	return &Attribute{
		URI:       uri,
		Authority: m[1],
		Name:      name,
		Value:     value,
	}, nil
}

// Namespace is the attribute URI without the value segment.
func (at *Attribute) Namespace() string {
	idx := strings.LastIndex(at.URI, "/value/")
	if idx == -1 {
		return at.Authority + "/attr/" + at.Name
	}
	return at.URI[:idx]
}

type serializedAttr struct {
	Attribute   string `json:"attribute"`
	DisplayName string `json:"displayName,omitempty"`
}

func (at *Attribute) UnmarshalJSON(data []byte) error {
	var serAt serializedAttr
	if err := json.Unmarshal(data, &serAt); err != nil {
		return err
	}
	parsed, err := ParseAttribute(serAt.Attribute)
	if err != nil {
		return err
	}
	*at = *parsed
	at.DisplayName = serAt.DisplayName
	return nil
}

func (at Attribute) MarshalJSON() ([]byte, error) {
	return json.Marshal(serializedAttr{Attribute: at.URI, DisplayName: at.DisplayName})
}
