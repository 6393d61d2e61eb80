package lossapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// CodecName is the content subtype of every lossapi call.
const CodecName = "struct"

func init() {
	encoding.RegisterCodec(structCodec{})
}

// structCodec carries a message as a binary google.protobuf.Struct whose
// fields follow the json tags of the message type. Struct numbers are doubles,
// so 64-bit values that may exceed 2^53 are tagged as strings.
type structCodec struct{}

func (structCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}

	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to convert %T to struct: %w", v, err)
	}

	out, err := proto.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return out, nil
}

func (structCodec) Unmarshal(data []byte, v any) error {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	if len(s.GetFields()) == 0 {
		return nil
	}

	js, err := protojson.Marshal(&s)
	if err != nil {
		return fmt.Errorf("failed to convert struct to %T: %w", v, err)
	}
	if err := json.Unmarshal(js, v); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	return nil
}

func (structCodec) Name() string {
	return CodecName
}
