package tdf3

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	KeyAccessRemote  = "remote"
	KeyAccessWrapped = "wrapped"
)

var ErrKeyAccess = errors.New("invalid key access object")

// KeyAccess is the per-wrap record from a TDF manifest.
type KeyAccess struct {
	Type              string         `json:"type"`
	URL               string         `json:"url"`
	Protocol          string         `json:"protocol"`
	WrappedKey        string         `json:"wrappedKey,omitempty"`
	PolicyBinding     *PolicyBinding `json:"policyBinding,omitempty"`
	EncryptedMetadata string         `json:"encryptedMetadata,omitempty"`
	KID               string         `json:"kid,omitempty"`
	SID               string         `json:"sid,omitempty"`
	Header            []byte         `json:"header,omitempty"`
	SchemaVersion     string         `json:"tdf_spec_version,omitempty"`
}

// Validate checks the required fields for the declared type.
func (ka *KeyAccess) Validate() error {
	switch ka.Type {
	case KeyAccessRemote, KeyAccessWrapped:
	case "":
		return fmt.Errorf("%w: no type value", ErrKeyAccess)
	default:
		return fmt.Errorf("%w: unknown type [%s]", ErrKeyAccess, ka.Type)
	}
	if ka.URL == "" {
		return fmt.Errorf("%w: no url value", ErrKeyAccess)
	}
	if ka.Protocol == "" {
		return fmt.Errorf("%w: no protocol value", ErrKeyAccess)
	}
	if ka.Type == KeyAccessWrapped {
		if ka.WrappedKey == "" {
			return fmt.Errorf("%w: no wrapped key", ErrKeyAccess)
		}
		if ka.PolicyBinding == nil {
			return fmt.Errorf("%w: no policy binding", ErrKeyAccess)
		}
	}
	return nil
}

// PolicyBinding appears on the wire either as a bare hex string or as the
// structured {"alg","hash"} form. Both decode to the same value.
type PolicyBinding struct {
	Alg  string `json:"alg,omitempty"`
	Hash string `json:"hash"`
}

func (pb *PolicyBinding) UnmarshalJSON(data []byte) error {
	var hash string
	if err := json.Unmarshal(data, &hash); err == nil {
		pb.Alg = ""
		pb.Hash = hash
		return nil
	}
	type alias PolicyBinding
	var structured alias
	if err := json.Unmarshal(data, &structured); err != nil {
		return err
	}
	*pb = PolicyBinding(structured)
	return nil
}

func (pb PolicyBinding) MarshalJSON() ([]byte, error) {
	if pb.Alg == "" {
		return json.Marshal(pb.Hash)
	}
	type alias PolicyBinding
	return json.Marshal(alias(pb))
}
