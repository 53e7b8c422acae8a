package types

import "github.com/cuprate/cuprate/internal/epee"

// SendRawTransactionRequest submits a hex-encoded transaction blob for
// relay (spec §4.11's Dandelion++ stem/fluff entry point).
type SendRawTransactionRequest struct {
	TxAsHex    string `json:"tx_as_hex"`
	DoNotRelay bool   `json:"do_not_relay,omitempty"`
}

func (r *SendRawTransactionRequest) FieldCount() int { return 2 }
func (r *SendRawTransactionRequest) WriteFields(w *epee.Writer) error {
	if err := w.Field("tx_as_hex", epee.TagString, func() { w.WriteString(r.TxAsHex) }); err != nil {
		return err
	}
	return w.Field("do_not_relay", epee.TagBool, func() { w.WriteBool(r.DoNotRelay) })
}
func (r *SendRawTransactionRequest) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "tx_as_hex":
		v, err := er.ReadString()
		r.TxAsHex = v
		return true, err
	case "do_not_relay":
		v, err := er.ReadBool()
		r.DoNotRelay = v
		return true, err
	}
	return false, nil
}
func (r *SendRawTransactionRequest) Finish() error { return nil }

// SendRawTransactionResponse reports the rejection reason flags the
// reference daemon exposes individually rather than folding them into one
// status string, so a wallet can distinguish "already in pool" from
// "double spend" from "fee too low" without parsing free text.
type SendRawTransactionResponse struct {
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	NotRelayed    bool   `json:"not_relayed,omitempty"`
	LowMixin      bool   `json:"low_mixin,omitempty"`
	DoubleSpend   bool   `json:"double_spend,omitempty"`
	InvalidInput  bool   `json:"invalid_input,omitempty"`
	InvalidOutput bool   `json:"invalid_output,omitempty"`
	TooBig        bool   `json:"too_big,omitempty"`
	Overspend     bool   `json:"overspend,omitempty"`
	FeeTooLow     bool   `json:"fee_too_low,omitempty"`
}

func (r *SendRawTransactionResponse) FieldCount() int { return 10 }
func (r *SendRawTransactionResponse) WriteFields(w *epee.Writer) error {
	if err := w.Field("status", epee.TagString, func() { w.WriteString(r.Status) }); err != nil {
		return err
	}
	if err := w.Field("reason", epee.TagString, func() { w.WriteString(r.Reason) }); err != nil {
		return err
	}
	boolFields := []struct {
		name string
		v    bool
	}{
		{"not_relayed", r.NotRelayed},
		{"low_mixin", r.LowMixin},
		{"double_spend", r.DoubleSpend},
		{"invalid_input", r.InvalidInput},
		{"invalid_output", r.InvalidOutput},
		{"too_big", r.TooBig},
		{"overspend", r.Overspend},
		{"fee_too_low", r.FeeTooLow},
	}
	for _, f := range boolFields {
		v := f.v
		if err := w.Field(f.name, epee.TagBool, func() { w.WriteBool(v) }); err != nil {
			return err
		}
	}
	return nil
}
func (r *SendRawTransactionResponse) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "status":
		v, err := er.ReadString()
		r.Status = v
		return true, err
	case "reason":
		v, err := er.ReadString()
		r.Reason = v
		return true, err
	case "not_relayed":
		v, err := er.ReadBool()
		r.NotRelayed = v
		return true, err
	case "low_mixin":
		v, err := er.ReadBool()
		r.LowMixin = v
		return true, err
	case "double_spend":
		v, err := er.ReadBool()
		r.DoubleSpend = v
		return true, err
	case "invalid_input":
		v, err := er.ReadBool()
		r.InvalidInput = v
		return true, err
	case "invalid_output":
		v, err := er.ReadBool()
		r.InvalidOutput = v
		return true, err
	case "too_big":
		v, err := er.ReadBool()
		r.TooBig = v
		return true, err
	case "overspend":
		v, err := er.ReadBool()
		r.Overspend = v
		return true, err
	case "fee_too_low":
		v, err := er.ReadBool()
		r.FeeTooLow = v
		return true, err
	}
	return false, nil
}
func (r *SendRawTransactionResponse) Finish() error { return nil }
