package endpoints

import (
	"bytes"
	"fmt"
	"strconv"
)

// Snowflake is a Discord id. Callers send it either as a number or as a
// string; it is always encoded as a string.
type Snowflake uint64

func (s *Snowflake) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(raw) == 0 || string(raw) == "null" {
		*s = 0
		return nil
	}
	v, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid snowflake %s: %w", data, err)
	}
	*s = Snowflake(v)
	return nil
}

func (s Snowflake) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, strconv.FormatUint(uint64(s), 10)), nil
}

func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}
