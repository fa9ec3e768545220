package report

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec selects the body encoding of the transport sinks.
type Codec string

const (
	CodecJSON Codec = "json"
	CodecCBOR Codec = "cbor"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	cborEnc, err = opts.EncMode()
	if err != nil {
		panic("report: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("report: CBOR decoder initialization failed: " + err.Error())
	}
}

// ParseCodec maps a configuration value to a Codec. The empty string
// selects JSON.
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecCBOR:
		return CodecCBOR, nil
	}
	return "", fmt.Errorf("unknown codec %q", name)
}

// ContentType returns the MIME type of bodies produced by c.
func (c Codec) ContentType() string {
	if c == CodecCBOR {
		return "application/cbor"
	}
	return "application/json"
}

// Encode renders env in c.
func (c Codec) Encode(env Envelope) ([]byte, error) {
	if c == CodecCBOR {
		return cborEnc.Marshal(env)
	}
	return json.Marshal(env)
}

// Decode parses a body produced by Encode.
func (c Codec) Decode(data []byte) (Envelope, error) {
	var env Envelope
	var err error
	if c == CodecCBOR {
		err = cborDec.Unmarshal(data, &env)
	} else {
		err = json.Unmarshal(data, &env)
	}
	return env, err
}
