package types

import "github.com/cuprate/cuprate/internal/epee"

// GetHeightRequest takes no parameters.
type GetHeightRequest struct{}

func (GetHeightRequest) FieldCount() int                                      { return 0 }
func (GetHeightRequest) WriteFields(*epee.Writer) error                       { return nil }
func (GetHeightRequest) AddField(string, epee.Tag, *epee.Reader) (bool, error) { return false, nil }
func (GetHeightRequest) Finish() error                                        { return nil }

// GetHeightResponse reports the node's current chain height.
type GetHeightResponse struct {
	Status    string `json:"status"`
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	Untrusted bool   `json:"untrusted"`
}

func (r *GetHeightResponse) FieldCount() int { return 4 }
func (r *GetHeightResponse) WriteFields(w *epee.Writer) error {
	if err := w.Field("status", epee.TagString, func() { w.WriteString(r.Status) }); err != nil {
		return err
	}
	if err := w.Field("height", epee.TagUint64, func() { w.WriteUint64(r.Height) }); err != nil {
		return err
	}
	if err := w.Field("hash", epee.TagString, func() { w.WriteString(r.Hash) }); err != nil {
		return err
	}
	return w.Field("untrusted", epee.TagBool, func() { w.WriteBool(r.Untrusted) })
}
func (r *GetHeightResponse) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "status":
		v, err := er.ReadString()
		r.Status = v
		return true, err
	case "height":
		v, err := er.ReadUint64()
		r.Height = v
		return true, err
	case "hash":
		v, err := er.ReadString()
		r.Hash = v
		return true, err
	case "untrusted":
		v, err := er.ReadBool()
		r.Untrusted = v
		return true, err
	}
	return false, nil
}
func (r *GetHeightResponse) Finish() error { return nil }
