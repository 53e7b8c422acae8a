package levin

import "github.com/cuprate/cuprate/internal/epee"

// EncodeRequest frames an admin request (expect-response=1, flags=request).
func EncodeRequest(cmd Command, body epee.Writable) ([]byte, error) {
	return encode(cmd, true, 0, FlagRequest, body)
}

// EncodeResponse frames an admin response (return code 1 = OK).
func EncodeResponse(cmd Command, body epee.Writable) ([]byte, error) {
	return encode(cmd, false, 1, FlagResponse, body)
}

// EncodeNotification frames a protocol notification: no response expected,
// return code 0, flags=request per the reference wire behavior (all
// protocol messages are sent as "requests" at the framing layer, spec §9).
func EncodeNotification(cmd Command, body epee.Writable) ([]byte, error) {
	return encode(cmd, false, 0, FlagRequest, body)
}

func encode(cmd Command, expectResponse bool, returnCode int32, flags uint32, body epee.Writable) ([]byte, error) {
	payload, err := epee.Marshal(body)
	if err != nil {
		return nil, err
	}
	h := Header{
		Signature:       Signature,
		BodySize:        uint64(len(payload)),
		ExpectResponse:  expectResponse,
		Command:         cmd,
		ReturnCode:      returnCode,
		Flags:           flags,
		ProtocolVersion: ProtocolVersion,
	}
	out := EncodeHeader(h)
	out = append(out, payload...)
	return out, nil
}

// Decode unmarshals a bucket's body into dst (an epee.Builder).
func Decode(body []byte, dst epee.Builder) error { return epee.Unmarshal(body, dst) }
