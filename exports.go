package metered

import "github.com/xraph/metered/types"

// Re-export common types for convenience so users don't have to import the
// types package.

// Window is re-exported from the types package.
type Window = types.Window

// Window granularities.
const (
	WindowMinute = types.WindowMinute
	WindowHour   = types.WindowHour
	WindowDay    = types.WindowDay
)

// Entity is re-exported from the types package.
type Entity = types.Entity

// NewEntity is re-exported from the types package.
var NewEntity = types.NewEntity
