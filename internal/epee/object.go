package epee

import "github.com/cuprate/cuprate/internal/cuperrors"

// Builder is the read-side build protocol every epee object type
// implements (spec §4.1): AddField is offered every (name, tagged value) in
// the wire order the peer sent them, and must either consume it or report
// that it's unrecognized so the reader can skip it and preserve forward
// compatibility. Finish validates that every required field arrived.
type Builder interface {
	// AddField is given the field name and a Reader positioned just after
	// the field's tag was already read into tag. It returns consumed=true
	// if it read the value itself, or consumed=false to let the caller
	// skip it via r.SkipValue(tag).
	AddField(name string, tag Tag, r *Reader) (consumed bool, err error)
	Finish() error
}

// Writable is the write-side protocol: a type reports how many fields it
// will write (after omitting defaulted-and-equal-to-default optional
// fields) then writes them in that declared order.
type Writable interface {
	FieldCount() int
	WriteFields(w *Writer) error
}

// UnmarshalObject reads a nested TLV object's field-count-prefixed body
// into b, tolerating and skipping any field b.AddField declines.
func UnmarshalObject(r *Reader, b Builder) error {
	n, err := r.ReadObjectFieldCount()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		name, err := r.ReadFieldName()
		if err != nil {
			return err
		}
		tag, err := r.ReadTag()
		if err != nil {
			return err
		}
		consumed, err := b.AddField(name, tag, r)
		if err != nil {
			return err
		}
		if !consumed {
			if err := r.SkipValue(tag); err != nil {
				return err
			}
		}
	}
	return b.Finish()
}

// Unmarshal parses a full epee document (the root object) into b.
func Unmarshal(data []byte, b Builder) error {
	r := NewReader(data)
	return UnmarshalObject(r, b)
}

// MarshalObject writes w's declared fields as a nested TLV object.
func MarshalObject(out *Writer, w Writable) error {
	out.WriteObjectFieldCount(w.FieldCount())
	return w.WriteFields(out)
}

// Marshal writes a full epee document (the root object) for w.
func Marshal(w Writable) ([]byte, error) {
	out := NewWriter()
	if err := MarshalObject(out, w); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Flatten injects a sub-object's fields into a parent Builder's namespace,
// per spec §4.1's `flatten` contract: it passes every field it is given to
// the embedded builder and does not consult parent.
func Flatten(parent Builder, embedded Builder, name string, tag Tag, r *Reader) (consumed bool, err error) {
	return embedded.AddField(name, tag, r)
}

// RequireField returns a typed ERR_FORMAT error for a Finish() implementation
// that found a required field missing.
func RequireField(name string) error {
	return cuperrors.New(cuperrors.ERR_FORMAT, "epee: required field %q missing", name)
}
