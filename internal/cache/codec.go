package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes entries to bytes for backends that store raw values.
type Codec interface {
	Encode(Entry) ([]byte, error)
	Decode([]byte) (Entry, error)
}

// CBOR serializes entries with fxamacker/cbor. Times are encoded as RFC3339Nano.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR() (CBOR, error) {
	eo := cbor.PreferredUnsortedEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, err
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR{}, err
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (c CBOR) Encode(e Entry) ([]byte, error) { return c.enc.Marshal(e) }

func (c CBOR) Decode(b []byte) (Entry, error) {
	var e Entry
	err := c.dec.Unmarshal(b, &e)
	return e, err
}

// Msgpack serializes entries with vmihailenco/msgpack. The zero value is ready to use.
type Msgpack struct{}

func (Msgpack) Encode(e Entry) ([]byte, error) { return msgpack.Marshal(e) }

func (Msgpack) Decode(b []byte) (Entry, error) {
	var e Entry
	err := msgpack.Unmarshal(b, &e)
	return e, err
}

// CodecByName returns the codec registered under name ("cbor" or "msgpack").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "cbor":
		return NewCBOR()
	case "msgpack":
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("cache: unknown codec %q", name)
	}
}
