package observability

import (
	"go.uber.org/zap"
)

// Field helpers keep correlation keys consistent across components, so a
// session can be followed through the logs by grepping one key.

func SessionID(id string) zap.Field { return zap.String("session_id", id) }
func RequestID(id string) zap.Field { return zap.String("request_id", id) }
func CaptureID(id string) zap.Field { return zap.String("capture_id", id) }
func StepID(id string) zap.Field    { return zap.String("step_id", id) }
func OpID(id uint64) zap.Field      { return zap.Uint64("op_id", id) }
