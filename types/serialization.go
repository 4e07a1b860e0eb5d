package types

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidEncoding is returned when binary data cannot be decoded.
var ErrInvalidEncoding = errors.New("invalid binary encoding")

// All binary forms in this package use the protobuf wire format with fields
// written in ascending field-number order, so equal values always encode to
// equal bytes.

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// fieldDecoder consumes the value of a single field and returns the number of
// bytes read. Returning 0 marks the field as unknown; it is skipped.
type fieldDecoder func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func decodeFields(bz []byte, fn fieldDecoder) error {
	for len(bz) > 0 {
		num, typ, n := protowire.ConsumeTag(bz)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidEncoding, protowire.ParseError(n))
		}
		bz = bz[n:]
		m, err := fn(num, typ, bz)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, bz)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrInvalidEncoding, protowire.ParseError(m))
			}
		}
		bz = bz[m:]
	}
	return nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("%w: expected length-delimited field, got wire type %d", ErrInvalidEncoding, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidEncoding, protowire.ParseError(n))
	}
	return append([]byte(nil), v...), n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("%w: expected varint field, got wire type %d", ErrInvalidEncoding, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidEncoding, protowire.ParseError(n))
	}
	return v, n, nil
}
