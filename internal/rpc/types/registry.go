package types

// Restricted classifies each method named in spec §4.16's documentation
// block as restricted (refused on a restricted listener) or unrestricted.
// Methods that dump the mempool, change peer limits, or touch the node's
// own connection, ban or log state are restricted; chain-state reads,
// get_transactions and send_raw_transaction are not.
var restrictedMethods = map[string]bool{
	"get_height":            false,
	"get_info":              false,
	"get_block":             false,
	"get_block_header_by_height": false,
	"get_block_header_by_hash":   false,
	"get_transactions":      false,
	"send_raw_transaction":  false,

	"get_transaction_pool":       true,
	"get_transaction_pool_hashes": true,
	"get_connections":            true,
	"get_peer_list":              true,
	"set_log_level":              true,
	"flush_txpool":               true,
	"out_peers":                  true,
	"in_peers":                   true,
}

// Restricted reports whether method is classified as restricted. An
// unrecognized method defaults to restricted: a method this daemon doesn't
// know can't be proven safe to expose on an unrestricted listener.
func Restricted(method string) bool {
	r, ok := restrictedMethods[method]
	if !ok {
		return true
	}
	return r
}
