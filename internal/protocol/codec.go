package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

const typeField = "type"

type variant struct {
	fresh    func() Message
	required []string
}

var variants = map[Kind]variant{
	KindJoinQueue:   {func() Message { return &JoinQueue{} }, []string{"username"}},
	KindStartMatch:  {func() Message { return &StartMatch{} }, []string{"player", "board", "opponent"}},
	KindPlayTurn:    {func() Message { return &PlayTurn{} }, []string{"col"}},
	KindGameUpdate:  {func() Message { return &GameUpdate{} }, []string{"board", "current_player"}},
	KindEndGame:     {func() Message { return &EndGame{} }, []string{"winner"}},
	KindError:       {func() Message { return &Error{} }, []string{"message"}},
	KindChatMessage: {func() Message { return &ChatMessage{} }, []string{"message"}},
	KindQueueUpdate: {func() Message { return &QueueUpdate{} }, []string{"queue_size"}},
}

// Encode serializes m as a JSON object carrying its "type" discriminator.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	fields := make(map[string]interface{})
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &fields,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	fields[typeField] = string(m.Kind())
	return json.Marshal(fields)
}

// integralNumbers refuses to truncate JSON numbers into integer fields:
// 3.7 is an error, 3.0 is 3.
func integralNumbers(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	f, ok := data.(float64)
	if !ok {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || f < math.MinInt32 || f > math.MaxInt32 {
		return nil, fmt.Errorf("%v is not a whole number in range", f)
	}
	return data, nil
}

// Decode parses one frame body into a message variant.
//
// Invalid JSON yields a Malformed ChannelError. A JSON object without a
// known "type" or without a required field yields a ProtocolError. Fields
// of the wrong JSON type are reported as Malformed.
func Decode(body []byte) (Message, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &ChannelError{Kind: Malformed, Err: err}
	}
	raw, ok := fields[typeField]
	if !ok {
		return nil, &ProtocolError{Code: MissingField, Detail: typeField}
	}
	name, ok := raw.(string)
	if !ok {
		return nil, &ProtocolError{Code: UnknownType, Detail: fmt.Sprintf("%v", raw)}
	}
	v, ok := variants[Kind(name)]
	if !ok {
		return nil, &ProtocolError{Code: UnknownType, Detail: name}
	}
	for _, field := range v.required {
		if _, ok := fields[field]; !ok {
			return nil, &ProtocolError{Code: MissingField, Detail: field}
		}
	}
	delete(fields, typeField)

	msg := v.fresh()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     msg,
		DecodeHook: integralNumbers,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(fields); err != nil {
		return nil, &ChannelError{Kind: Malformed, Err: fmt.Errorf("%s: %w", name, err)}
	}
	return msg, nil
}
