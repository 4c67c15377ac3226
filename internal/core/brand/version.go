package brand

import (
	"database/sql/driver"
	"encoding/json"
	"strconv"
)

const versionNumberField = "version_number"

// VersionNumber is a positive revision counter.
type VersionNumber struct {
	n int64
}

// FirstVersion is the version every entity starts at.
var FirstVersion = VersionNumber{n: 1}

func ToVersionNumber(raw int64, safely bool) (VersionNumber, error) {
	if safely {
		if err := validate.Var(raw, "gte=1"); err != nil {
			return VersionNumber{}, versionError()
		}
	} else if raw < 1 {
		return VersionNumber{}, versionError()
	}
	return VersionNumber{n: raw}, nil
}

// ParseVersionNumber accepts the decimal text form. With safely set the text must
// also be canonical: no sign, no leading zeros.
func ParseVersionNumber(raw string, safely bool) (VersionNumber, error) {
	if len(raw) == 0 || len(raw) > 19 {
		return VersionNumber{}, versionError()
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return VersionNumber{}, versionError()
	}
	if safely && strconv.FormatInt(n, 10) != raw {
		return VersionNumber{}, versionError()
	}
	return ToVersionNumber(n, safely)
}

func versionError() error {
	return &ValidationError{Field: versionNumberField, Reason: "must be an integer >= 1"}
}

func (v VersionNumber) Int64() int64 {
	return v.n
}

func (v VersionNumber) IsZero() bool {
	return v.n == 0
}

func (v VersionNumber) Next() VersionNumber {
	return VersionNumber{n: v.n + 1}
}

func (v VersionNumber) String() string {
	return strconv.FormatInt(v.n, 10)
}

func (v VersionNumber) Value() (driver.Value, error) {
	return v.n, nil
}

func (v VersionNumber) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.n)
}

func (v *VersionNumber) UnmarshalJSON(data []byte) error {
	var raw int64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n, err := ToVersionNumber(raw, false)
	if err != nil {
		return err
	}
	*v = n
	return nil
}
