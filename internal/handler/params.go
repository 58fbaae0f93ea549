// Package handler implements the per-message-type handlers dispatched by
// internal/router, generalizing the case arms of the teacher's
// handleConnection switch (pkg/network/relay.go) into standalone,
// independently-testable units (spec.md §4.5).
package handler

import (
	"strconv"

	"github.com/chatrelay/relayd/internal/wire"
)

func paramString(m *wire.ManagementMessage, key string) (string, bool) {
	v, ok := m.Params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramInt32(m *wire.ManagementMessage, key string) (int32, bool) {
	v, ok := m.Params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return int32(n), true
	case int:
		return int32(n), true
	default:
		return 0, false
	}
}

// memberKey builds the "member0".."memberN-1" convention used to pass a
// variable-length id list through ManagementMessage's flat string-keyed
// parameter map.
func memberKey(i int32) string {
	return "member" + strconv.Itoa(int(i))
}
