package analysis

import (
	"encoding/json"
	"fmt"
)

// TraceEvent is one basic-block execution record from the profiler log.
// Offset is relative to the start of the owning function's bytecode.
type TraceEvent struct {
	FunctionID     uint32 `json:"functionId"`
	Offset         uint32 `json:"offset"`
	ExecutionCount uint64 `json:"executionCount"`
}

// Profile is a parsed basic-block profiler log.
type Profile struct {
	Version  int          `json:"version"`
	PageSize uint32       `json:"page_size"`
	Trace    []TraceEvent `json:"trace"`
}

const defaultPageSize = 4096

// ParseProfile decodes a profiler log in JSON format.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if p.Version != 1 {
		return nil, fmt.Errorf("unsupported profile version: %d", p.Version)
	}
	if p.PageSize == 0 {
		p.PageSize = defaultPageSize
	}
	return &p, nil
}
