package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// RawContactRecord is an externally supplied, loosely typed contact. Every
// field tolerates the shapes seen in spreadsheet and form exports.
type RawContactRecord struct {
	ID           LooseString `json:"id"`
	Name         LooseString `json:"name"`
	FirstName    LooseString `json:"first_name"`
	LastName     LooseString `json:"last_name"`
	Email        LooseString `json:"email"`
	Phone        LooseString `json:"phone"`
	Tags         TagList     `json:"tags"`
	Position     LooseString `json:"position"`
	Notes        LooseString `json:"notes"`
	Value        LooseNumber `json:"value"`
	Organization LooseString `json:"company"`
}

// LooseString accepts a JSON string, number, boolean or null.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return eris.Wrap(err, "model: decode string")
		}
		*s = LooseString(v)
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		return eris.Errorf("model: expected scalar, got %s", string(b[:1]))
	}
	*s = LooseString(string(b))
	return nil
}

// String returns the trimmed value.
func (s LooseString) String() string {
	return strings.TrimSpace(string(s))
}

// LooseNumber accepts a JSON number, a numeric string (comma or dot decimal)
// or null. Unparseable strings decode as absent.
type LooseNumber struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *LooseNumber) UnmarshalJSON(b []byte) error {
	var s LooseString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	n.Value = ParseNumber(s.String())
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n LooseNumber) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// ParseNumber parses a loosely formatted decimal such as "1.234,50" or "99.9".
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "R$"), "$")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// TagList accepts a delimited string, a list of strings, a list of {name}
// objects, or null. Values are kept raw; splitting of delimited strings
// happens in the tags package.
type TagList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *TagList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] != '[' {
		var s LooseString
		if err := s.UnmarshalJSON(b); err != nil {
			return err
		}
		if v := s.String(); v != "" {
			*l = TagList{v}
		}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return eris.Wrap(err, "model: decode tag list")
	}
	out := make(TagList, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '{' {
			var obj struct {
				Name LooseString `json:"name"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				return eris.Wrap(err, "model: decode tag object")
			}
			if v := obj.Name.String(); v != "" {
				out = append(out, v)
			}
			continue
		}
		var s LooseString
		if err := s.UnmarshalJSON(item); err != nil {
			return err
		}
		if v := s.String(); v != "" {
			out = append(out, v)
		}
	}
	*l = out
	return nil
}

// ImportRequest is the decoded request body of a bulk import.
type ImportRequest struct {
	Contacts              []RawContactRecord    `json:"contactsData"`
	ImportName            string                `json:"importName"`
	GlobalTags            TagList               `json:"globalTags"`
	IndividualAssignments map[string]Assignment `json:"individualAssignments"`
	ImportID              string                `json:"importId"`
}

// Assignment holds the tags assigned to a single contact by its local id.
type Assignment struct {
	Tags TagList `json:"tags"`
}
