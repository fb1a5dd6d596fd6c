package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// Handler holds metadata about a registered job handler.
// Each job type maps to exactly one handler and therefore exactly one
// payload type: dispatch is by the job's type tag, and the stored args
// always unmarshal into the struct the handler declared.
type Handler struct {
	fn       reflect.Value
	argsType reflect.Type
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// NewHandler creates a Handler from a function.
// The function must have signature: func(ctx context.Context, args T) error
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)
	if !fnVal.IsValid() || (fnVal.Kind() == reflect.Func && fnVal.IsNil()) {
		return nil, fmt.Errorf("handler function cannot be nil")
	}

	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}
	if fnType.NumIn() != 2 || !fnType.In(0).Implements(ctxType) {
		return nil, fmt.Errorf("handler must take (context.Context, args)")
	}
	if fnType.NumOut() != 1 || !fnType.Out(0).Implements(errType) {
		return nil, fmt.Errorf("handler must return error")
	}

	return &Handler{fn: fnVal, argsType: fnType.In(1)}, nil
}

// ArgsType returns the payload type this handler accepts.
func (h *Handler) ArgsType() reflect.Type {
	return h.argsType
}

// Execute runs the handler with the given context and serialized arguments.
func (h *Handler) Execute(ctx context.Context, argsJSON []byte) error {
	argVal := reflect.New(h.argsType)
	if err := json.Unmarshal(argsJSON, argVal.Interface()); err != nil {
		return fmt.Errorf("failed to unmarshal args: %w", err)
	}

	results := h.fn.Call([]reflect.Value{reflect.ValueOf(ctx), argVal.Elem()})
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}
