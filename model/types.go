// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap type used to have a map[string]string directly in the database in a TEXT or JSON/JSONB
// field
type StringMap map[string]string

func (sm StringMap) Value() (driver.Value, error) {
	return json.Marshal(sm)
}

func (sm *StringMap) Scan(v interface{}) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string: // sqlite's text
		return json.Unmarshal([]byte(data), sm)
	case []byte: // psqls jsonb
		return json.Unmarshal(data, sm)
	default:
		return fmt.Errorf("cannot scan type %t into StringMap", v)
	}
}

// StringList type used to have a []string directly in the database in a TEXT or JSON/JSONB field.
type StringList []string

func (sl StringList) Value() (driver.Value, error) {
	return json.Marshal(sl)
}

func (sl *StringList) Scan(v interface{}) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string:
		return json.Unmarshal([]byte(data), sl)
	case []byte:
		return json.Unmarshal(data, sl)
	default:
		return fmt.Errorf("cannot scan type %t into StringList", v)
	}
}

// Contains reports whether the list holds the given value.
func (sl StringList) Contains(value string) bool {
	for _, s := range sl {
		if s == value {
			return true
		}
	}
	return false
}
