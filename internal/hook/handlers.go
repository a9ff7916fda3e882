package hook

import "context"

// DefaultHandlers returns a catalog with the built-in handlers:
//
//	log   logs the event at info level, with the hook's args as fields
//	noop  does nothing
func DefaultHandlers() *Handlers {
	h := NewHandlers()
	h.Register("log", logHandler)
	h.Register("noop", func(context.Context, Call) error { return nil })
	return h
}

func logHandler(ctx context.Context, call Call) error {
	fields := []any{"event", call.Event, "plugin", call.Hook.Plugin}
	for _, key := range sortedKeys(call.Hook.Args) {
		fields = append(fields, key, call.Hook.Args[key])
	}
	if call.Data != nil {
		fields = append(fields, "data", call.Data)
	}
	call.Logger.Info("Hook event", fields...)
	return nil
}
