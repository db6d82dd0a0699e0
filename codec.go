package prefs

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/zeebo/bencode"
	"gopkg.in/yaml.v2"
)

// Codec serializes opaque preference values.
type Codec interface {
	// Name identifies the codec inside stored envelopes. It must be stable.
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec encodes objects with encoding/json. It is the default codec.
type JSONCodec struct{}

func (JSONCodec) Name() string                       { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// YAMLCodec encodes objects as YAML.
type YAMLCodec struct{}

func (YAMLCodec) Name() string                       { return "yaml" }
func (YAMLCodec) Marshal(v any) ([]byte, error)      { return yaml.Marshal(v) }
func (YAMLCodec) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }

// BencodeCodec encodes objects with bencoding. Field names come from
// `bencode` struct tags.
type BencodeCodec struct{}

func (BencodeCodec) Name() string { return "bencode" }

func (BencodeCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (BencodeCodec) Unmarshal(data []byte, v any) error {
	return bencode.NewDecoder(bytes.NewReader(data)).Decode(v)
}

var (
	codecsMu sync.RWMutex
	codecs   = map[string]Codec{
		"json":    JSONCodec{},
		"yaml":    YAMLCodec{},
		"bencode": BencodeCodec{},
	}
)

// RegisterCodec makes c available for decoding envelopes that name it.
func RegisterCodec(c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[c.Name()] = c
}

// CodecByName returns a registered codec.
func CodecByName(name string) (Codec, error) {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrSerialization, name)
	}
	return c, nil
}

// Opaque values are stored in a self-describing envelope:
//
//	magic "PRFO" | version (1 byte) | codec | type | payload
//
// where codec, type and payload are each prefixed by their uvarint length.
const (
	envelopeMagic   = "PRFO"
	envelopeVersion = 1
)

func encodeObject(codec Codec, v any) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: nil object", ErrInvalidValue)
	}
	payload, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s marshal: %v", ErrSerialization, codec.Name(), err)
	}
	typeName := reflect.TypeOf(v).String()

	out := make([]byte, 0, len(envelopeMagic)+1+len(codec.Name())+len(typeName)+len(payload)+3*binary.MaxVarintLen64)
	out = append(out, envelopeMagic...)
	out = append(out, envelopeVersion)
	out = appendField(out, []byte(codec.Name()))
	out = appendField(out, []byte(typeName))
	out = appendField(out, payload)
	return out, nil
}

func appendField(dst, field []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(field)))
	return append(dst, field...)
}

// decodeObject decodes an envelope into a new value of type want.
func decodeObject(data []byte, want reflect.Type) (any, error) {
	if len(data) < len(envelopeMagic)+1 || string(data[:len(envelopeMagic)]) != envelopeMagic {
		return nil, fmt.Errorf("%w: not an object envelope", ErrSerialization)
	}
	data = data[len(envelopeMagic):]
	if data[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrSerialization, data[0])
	}
	data = data[1:]

	codecName, data, err := readField(data)
	if err != nil {
		return nil, err
	}
	typeName, data, err := readField(data)
	if err != nil {
		return nil, err
	}
	payload, rest, err := readField(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after payload", ErrSerialization, len(rest))
	}
	if string(typeName) != want.String() {
		return nil, fmt.Errorf("%w: stored type %s, want %s", ErrSerialization, typeName, want)
	}

	codec, err := CodecByName(string(codecName))
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(want)
	if err := codec.Unmarshal(payload, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %s unmarshal: %v", ErrSerialization, codecName, err)
	}
	return ptr.Elem().Interface(), nil
}

func readField(data []byte) (field, rest []byte, err error) {
	n, size := binary.Uvarint(data)
	if size <= 0 {
		return nil, nil, fmt.Errorf("%w: malformed field length", ErrSerialization)
	}
	data = data[size:]
	if n > uint64(len(data)) {
		return nil, nil, fmt.Errorf("%w: field length %d exceeds %d remaining bytes", ErrSerialization, n, len(data))
	}
	return data[:n], data[n:], nil
}
