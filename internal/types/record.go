package types

import "time"

// Record represents a single ledger transaction record. Records are opaque
// mappings; anything placed in one must survive the canonical JSON encoding
// used for block hashing.
type Record map[string]interface{}

// Clone returns a deep copy of the record. Chain data crosses component
// boundaries by value only, so accessors hand out clones rather than the
// live maps.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// CloneRecords deep-copies a slice of records.
func CloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Record(val).Clone())
	case Record:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Now returns the current time as fractional unix seconds, the timestamp
// representation used across blocks, records and messages.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
