package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a record identifier. The content backend uses integer keys for some
// collections and string keys for others, so both JSON forms are accepted.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric identifiers back as numbers so integer foreign
// keys round-trip unchanged.
func (id ID) MarshalJSON() ([]byte, error) {
	if id != "" && isDigits(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func isDigits(s string) bool {
	if len(s) > 18 || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
