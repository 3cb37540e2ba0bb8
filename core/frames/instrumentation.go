package frames

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-chat/core/frames"

var logger = otelslog.NewLogger(scopeName)
