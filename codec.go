package servicebus

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/coregx/servicebus/model"
)

// Codec encodes values into message bodies and decodes them back.
type Codec interface {
	// Write encodes v into msg.Body.
	Write(msg *model.Message, v any) error

	// Read decodes msg.Body into v, which must be a non-nil pointer.
	Read(msg model.Message, v any) error

	// CanRead reports whether msg carries a body that can be decoded.
	CanRead(msg model.Message) bool
}

// JSONCodec encodes message bodies as UTF-8 JSON.
type JSONCodec struct{}

// Write implements Codec.Write. Nil values are rejected.
func (JSONCodec) Write(msg *model.Message, v any) error {
	if msg == nil {
		return NewError(ErrCodeValidation, "message cannot be nil")
	}
	if isNil(v) {
		return NewError(ErrCodeValidation, "message value cannot be nil")
	}

	body, err := json.Marshal(v)
	if err != nil {
		return NewErrorWithCause(ErrCodeValidation, fmt.Sprintf("failed to encode %T", v), err)
	}

	msg.Body = body
	return nil
}

// Read implements Codec.Read. Returns ErrNoData when the body is empty.
func (c JSONCodec) Read(msg model.Message, v any) error {
	if !c.CanRead(msg) {
		return ErrNoData
	}

	if err := json.Unmarshal(msg.Body, v); err != nil {
		return NewErrorWithCause(ErrCodeValidation, fmt.Sprintf("failed to decode message %d into %T", msg.ID, v), err)
	}
	return nil
}

// CanRead implements Codec.CanRead.
func (JSONCodec) CanRead(msg model.Message) bool {
	return !msg.IsEmpty()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
