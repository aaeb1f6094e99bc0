package cache

import (
	"encoding/json"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns values into blob bytes and back.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	// JSONCodec is the default blob codec, readable by the other services
	// sharing the content containers.
	JSONCodec Codec = jsonCodec{}
	// MsgpackCodec is a compact codec for blobs only this cache reads.
	MsgpackCodec Codec = msgpackCodec{}
)

var codecs = []Codec{JSONCodec, MsgpackCodec}

// CodecByName returns the codec registered as name ("json" or "msgpack").
// An empty name selects JSONCodec.
func CodecByName(name string) (Codec, error) {
	if name == "" {
		return JSONCodec, nil
	}
	for _, c := range codecs {
		if strings.EqualFold(c.Name(), name) {
			return c, nil
		}
	}
	return nil, configErrorf("cache: unknown codec %q", name)
}

func codecForContentType(contentType string, fallback Codec) Codec {
	for _, c := range codecs {
		if c.ContentType() == contentType {
			return c
		}
	}
	return fallback
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) ContentType() string                { return "application/json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) ContentType() string                { return "application/msgpack" }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
