package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSessionID = "sessionID"
	FieldNameUsername  = "username"
	FieldNameState     = "state"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldSessionID 返回一个包含会话 ID 的 zap 字段。
func FieldSessionID(id uint64) zap.Field {
	return zap.Uint64(FieldNameSessionID, id)
}

// FieldUsername 返回一个包含用户名的 zap 字段。
func FieldUsername(name string) zap.Field {
	return zap.String(FieldNameUsername, name)
}

// FieldState 返回一个包含会话状态的 zap 字段。
func FieldState(state fmt.Stringer) zap.Field {
	return zap.Stringer(FieldNameState, state)
}

// FieldMessage 返回一个包含消息对象的 zap 字段。
func FieldMessage(msg zapcore.ObjectMarshaler) zap.Field {
	return zap.Object("message", msg)
}
