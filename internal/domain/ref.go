package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ref is a reference to another document. The backend sends either the bare
// id or the populated document; only the id is kept.
type Ref string

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	}
	var doc struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	*r = Ref(doc.ID)
	return nil
}
