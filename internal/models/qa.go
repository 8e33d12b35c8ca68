package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// QATests is a decoded qa_tests jsonb column. The pipeline stores either a
// list of per-test objects or a single object keyed by test name; objects are
// flattened into their values ordered by key.
type QATests []any

// Value marshals the tests for persistence.
func (q QATests) Value() (driver.Value, error) {
	if q == nil {
		return nil, nil
	}
	data, err := json.Marshal([]any(q))
	if err != nil {
		return nil, fmt.Errorf("marshal qa tests: %w", err)
	}
	return data, nil
}

// Scan decodes a jsonb payload.
func (q *QATests) Scan(value interface{}) error {
	if value == nil {
		*q = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported qa tests type %T", value)
	}
	decoded, err := DecodeQATests(data)
	if err != nil {
		return err
	}
	*q = decoded
	return nil
}

// DecodeQATests parses a raw qa_tests document.
func DecodeQATests(data []byte) (QATests, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal qa tests: %w", err)
	}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		return QATests(v), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(QATests, 0, len(keys))
		for _, k := range keys {
			out = append(out, v[k])
		}
		return out, nil
	default:
		return QATests{v}, nil
	}
}
