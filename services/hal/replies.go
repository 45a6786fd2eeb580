package hal

import (
	"sensorcode-go/bus"
	"sensorcode-go/errcode"
	"sensorcode-go/types"
)

func (h *HAL) replyOK(m *bus.Message) {
	if m.CanReply() {
		h.conn.Reply(m, types.OKReply{OK: true}, false)
	}
}

func (h *HAL) replyErr(m *bus.Message, code errcode.Code) {
	if !m.CanReply() {
		return
	}
	if code == "" {
		code = errcode.Error
	}
	h.conn.Reply(m, types.ErrorReply{OK: false, Error: string(code)}, false)
}

func (h *HAL) replyFromError(m *bus.Message, err error) {
	h.replyErr(m, errcode.Of(err))
}

// As asserts a payload to the concrete value type T. A nil payload is the
// zero value of T.
func As[T any](v any) (T, errcode.Code) {
	var zero T
	if v == nil {
		return zero, ""
	}
	t, ok := v.(T)
	if !ok {
		return zero, errcode.InvalidPayload
	}
	return t, ""
}
