// Package builtin provides the stock tool set: clock and calculator
// utilities plus the novel-writing tools the main agent drives.
package builtin

import (
	"context"
	"time"

	"fable/internal/tools"
)

// CurrentTimeTool reports the wall-clock time.
func CurrentTimeTool() *tools.Tool {
	return &tools.Tool{
		Name:        "get_current_time",
		Description: "Get current time",
		Parameters:  tools.ObjectSchema(map[string]any{}),
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{
				"current_time": time.Now().Format("2006-01-02 15:04:05"),
			}, nil
		},
	}
}
