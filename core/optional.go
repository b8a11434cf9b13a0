package core

import "encoding/json"

// OptionalString is a JSON field that tells apart an absent key, an explicit null and a value.
type OptionalString struct {
	Set   bool   // key was present
	Valid bool   // value was not null
	Value string
}

func NewOptionalString(val string) OptionalString {
	return OptionalString{Set: true, Valid: true, Value: val}
}

// NullOptionalString is an explicit null.
func NullOptionalString() OptionalString {
	return OptionalString{Set: true}
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Valid = false
		o.Value = ""
		return nil
	}
	o.Valid = true
	return json.Unmarshal(data, &o.Value)
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
