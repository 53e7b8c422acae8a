package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	json "github.com/segmentio/encoding/json"

	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/epee"
)

func TestRequest_IsNotification(t *testing.T) {
	withID := Request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "get_height"}
	require.False(t, withID.IsNotification())

	noID := Request{JSONRPC: "2.0", Method: "get_height"}
	require.True(t, noID.IsNotification())
}

func TestNewErrorResponse_NilIDBecomesJSONNull(t *testing.T) {
	resp := NewErrorResponse(nil, CodeParseError, "bad json")
	require.Equal(t, json.RawMessage("null"), resp.ID)
	require.Equal(t, CodeParseError, resp.Error.Code)
}

func TestNewResultResponse_MarshalsResultAndEchoesID(t *testing.T) {
	id := json.RawMessage(`"req-1"`)
	resp, err := NewResultResponse(id, &GetHeightResponse{Status: "OK", Height: 42})
	require.NoError(t, err)
	require.Equal(t, id, resp.ID)
	require.Contains(t, string(resp.Result), `"height":42`)
	require.Nil(t, resp.Error)
}

func TestErrorFromCuprate_MapsKnownCodes(t *testing.T) {
	code, _ := ErrorFromCuprate(cuperrors.New(cuperrors.ERR_RPC_INVALID_PARAMS, "bad param"))
	require.Equal(t, CodeInvalidParams, code)

	code, _ = ErrorFromCuprate(cuperrors.New(cuperrors.ERR_RPC_METHOD_NOT_FOUND, "no such method"))
	require.Equal(t, CodeMethodNotFound, code)

	code, _ = ErrorFromCuprate(cuperrors.New(cuperrors.ERR_STORAGE_CORRUPTION, "disk fault"))
	require.Equal(t, CodeInternalError, code)
}

func TestRestricted_KnownAndUnknownMethods(t *testing.T) {
	require.False(t, Restricted("get_height"))
	require.True(t, Restricted("get_connections"))
	require.True(t, Restricted("some_future_method_not_in_the_table"))
}

func TestGetHeightResponse_EpeeRoundTrip(t *testing.T) {
	in := &GetHeightResponse{Status: "OK", Height: 3000000, Hash: "deadbeef", Untrusted: false}
	data, err := epee.Marshal(in)
	require.NoError(t, err)

	out := &GetHeightResponse{}
	require.NoError(t, epee.Unmarshal(data, out))
	require.Equal(t, in, out)
}

func TestSendRawTransactionResponse_EpeeRoundTripPreservesFlags(t *testing.T) {
	in := &SendRawTransactionResponse{Status: "Failed", Reason: "Double spend", DoubleSpend: true, FeeTooLow: false}
	data, err := epee.Marshal(in)
	require.NoError(t, err)

	out := &SendRawTransactionResponse{}
	require.NoError(t, epee.Unmarshal(data, out))
	require.Equal(t, in, out)
}

func TestGetTransactionsResponse_JSONOmitsEmptyMissedTx(t *testing.T) {
	resp := &GetTransactionsResponse{Status: "OK"}
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	require.NotContains(t, string(body), "missed_tx")
}
