package format

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// cborMode encodes maps and struct fields in a stable order so equal
// summaries produce equal bytes.
var cborMode, _ = cbor.CoreDetEncOptions().EncMode()

// CBOREncoder writes the summary as one CBOR data item. Struct fields use
// the same keys as the JSON encoder.
type CBOREncoder struct {
	w     io.Writer
	class *Class
}

func NewCBOREncoder(w io.Writer) *CBOREncoder {
	return &CBOREncoder{w: w}
}

func (e *CBOREncoder) Encode(class *Class) error {
	e.class = class
	data, err := e.MarshalText()
	if err != nil {
		return err
	}
	_, err = e.w.Write(data)
	return err
}

// MarshalText returns the binary CBOR encoding.
func (e *CBOREncoder) MarshalText() ([]byte, error) {
	return cborMode.Marshal(e.class)
}

// DecodeCBOR reads a summary written by CBOREncoder.
func DecodeCBOR(data []byte) (*Class, error) {
	var c Class
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
