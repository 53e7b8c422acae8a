// Package settings centralizes every tunable named in spec.md (resource
// budgets in §5, timers in §4.8/§4.11, size caps in §4.2/§4.12) behind typed
// getters, the way the node's services have always pulled config out of a
// single keyed source rather than scattering os.Getenv calls.
package settings

import (
	"os"
	"strconv"
	"time"
)

// Source is a minimal key-value config provider. The concrete file/CLI
// loader is out of scope (spec §1); Source lets tests and the caller supply
// overrides without depending on any particular loader.
type Source interface {
	Get(key string) (string, bool)
}

// EnvSource reads keys from the process environment.
type EnvSource struct{}

func (EnvSource) Get(key string) (string, bool) { return os.LookupEnv(key) }

// MapSource is a static Source, handy for tests.
type MapSource map[string]string

func (m MapSource) Get(key string) (string, bool) { v, ok := m[key]; return v, ok }

// Settings is the typed view over a Source, with defaults baked in for every
// value spec.md names.
type Settings struct {
	src Source
}

func New(src Source) *Settings {
	if src == nil {
		src = EnvSource{}
	}
	return &Settings{src: src}
}

func (s *Settings) GetString(key, def string) string {
	if v, ok := s.src.Get(key); ok {
		return v
	}
	return def
}

func (s *Settings) GetInt(key string, def int) int {
	if v, ok := s.src.Get(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (s *Settings) GetBool(key string, def bool) bool {
	if v, ok := s.src.Get(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func (s *Settings) GetDuration(key string, def time.Duration) time.Duration {
	if v, ok := s.src.Get(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// P2P budgets, §5.
func (s *Settings) MaxOutboundPerZone() int  { return s.GetInt("p2p_maxOutboundPerZone", 64) }
func (s *Settings) MaxInboundPerZone() int   { return s.GetInt("p2p_maxInboundPerZone", 128) }
func (s *Settings) MaxOutstandingRequests() int {
	return s.GetInt("p2p_maxOutstandingRequestsPerPeer", 32)
}
func (s *Settings) PeerListShareCap() int { return s.GetInt("p2p_peerListShareCap", 250) }
func (s *Settings) ChainEntryIDCap() int  { return s.GetInt("p2p_chainEntryIdCap", 25000) }
func (s *Settings) BlockBatchCap() int    { return s.GetInt("p2p_blockBatchCap", 100) }
func (s *Settings) BucketSizeCap() uint64 {
	return uint64(s.GetInt("p2p_bucketSizeCap", 100*1024*1024))
}

// Block downloader, §4.12.
func (s *Settings) DownloaderAncestorFanout() int {
	return s.GetInt("downloader_ancestorFanout", 4)
}
func (s *Settings) DownloaderBatchFanout() int { return s.GetInt("downloader_batchFanout", 3) }
func (s *Settings) DownloaderInFlightBatches() int {
	return s.GetInt("downloader_inFlightBatches", 4)
}

// Timers, §4.8/§4.11.
func (s *Settings) TimedSyncInterval() time.Duration {
	return s.GetDuration("p2p_timedSyncInterval", 60*time.Second)
}
func (s *Settings) HandshakeTimeout() time.Duration {
	return s.GetDuration("p2p_handshakeTimeout", 10*time.Second)
}
func (s *Settings) DandelionEpoch() time.Duration {
	return s.GetDuration("dandelion_epoch", 10*time.Minute)
}
func (s *Settings) DandelionStemFanout() float64 {
	f := s.GetInt("dandelion_stemProbabilityPct", 90)
	return float64(f) / 100.0
}
func (s *Settings) DandelionEmbargoMin() time.Duration {
	return s.GetDuration("dandelion_embargoMin", 30*time.Second)
}
func (s *Settings) DandelionEmbargoMax() time.Duration {
	return s.GetDuration("dandelion_embargoMax", 90*time.Second)
}
func (s *Settings) TorEnabled() bool { return s.GetBool("p2p_torEnabled", false) }

// Consensus context, §4.14.
func (s *Settings) DifficultyTargetSeconds() int { return s.GetInt("consensus_difficultyTargetSeconds", 120) }
func (s *Settings) DifficultyTargetMinutes() int { return s.GetInt("consensus_difficultyTargetMinutes", 2) }
func (s *Settings) HardForkVoteWindow() int      { return s.GetInt("consensus_hardForkVoteWindow", 10080) }

// Address book, §4.7.
func (s *Settings) AnchorSetCap() int { return s.GetInt("addrbook_anchorCap", 8) }
func (s *Settings) WhiteSetCap() int  { return s.GetInt("addrbook_whiteCap", 1000) }
func (s *Settings) GraySetCap() int   { return s.GetInt("addrbook_grayCap", 5000) }
func (s *Settings) GrayTTL() time.Duration {
	return s.GetDuration("addrbook_grayTTL", 7*24*time.Hour)
}
func (s *Settings) DemoteBaseBackoff() time.Duration {
	return s.GetDuration("addrbook_demoteBaseBackoff", 10*time.Second)
}
func (s *Settings) DemoteMaxBackoff() time.Duration {
	return s.GetDuration("addrbook_demoteMaxBackoff", 6*time.Hour)
}
func (s *Settings) PersistInterval() time.Duration {
	return s.GetDuration("addrbook_persistInterval", 5*time.Minute)
}
func (s *Settings) PersistPath() string {
	return s.GetString("addrbook_persistPath", "peerlist.json")
}

// DataPath is where the blockchain/txpool database.Env (C6) is opened.
func (s *Settings) DataPath() string {
	return s.GetString("storage_dataPath", "cuprate-data.db")
}

// ServiceName labels every log line ulog emits for this process.
func (s *Settings) ServiceName() string {
	return s.GetString("log_serviceName", "cuprated")
}

// ReaderPoolSize bounds storage.Service's concurrent read requests
// (spec §4.6 "a pool of worker threads sized to available cores").
// def is the caller's fallback when unset, typically runtime.NumCPU().
func (s *Settings) ReaderPoolSize(def int) int { return s.GetInt("storage_readerPoolSize", def) }

// Node identity, §4.9/§6. NetworkID distinguishes mainnet/testnet/
// stagenet peers at the handshake (a mismatch is a protocol violation,
// spec §4.8). The value is read as 32 hex chars (16 bytes); parsing stops
// at the first non-hex pair or after 16 bytes, bytes not parsed stay zero,
// and no error is reported for a malformed value.
func (s *Settings) NetworkID() [16]byte {
	hexStr := s.GetString("p2p_networkId", "1230f171610111007101010020011012")
	var id [16]byte
	n := 0
	for i := 0; i+1 < len(hexStr) && n < 16; i += 2 {
		hi := hexNibble(hexStr[i])
		lo := hexNibble(hexStr[i+1])
		if hi < 0 || lo < 0 {
			break
		}
		id[n] = byte(hi<<4 | lo)
		n++
	}
	return id
}

func hexNibble(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

func (s *Settings) MyPeerID() uint64          { return uint64(s.GetInt("p2p_myPeerId", 0)) }
func (s *Settings) MyPort() uint32            { return uint32(s.GetInt("p2p_myPort", 18080)) }
func (s *Settings) MyRPCPort() uint16         { return uint16(s.GetInt("p2p_myRpcPort", 0)) }
func (s *Settings) MyRPCCreditsPerHash() uint32 { return uint32(s.GetInt("p2p_myRpcCreditsPerHash", 0)) }
func (s *Settings) MySupportFlags() uint32    { return uint32(s.GetInt("p2p_mySupportFlags", 0)) }

// Storage, §4.3/§4.6.
func (s *Settings) SyncThreshold() int { return s.GetInt("storage_syncThresholdCommits", 100) }

// RPC interface, §4.15/§4.16.
func (s *Settings) RPCBindAddress() string   { return s.GetString("rpc_bindAddress", "127.0.0.1:18081") }
func (s *Settings) RPCRestrictedBindAddress() string {
	return s.GetString("rpc_restrictedBindAddress", "")
}
func (s *Settings) RPCMaxBodyBytes() int { return s.GetInt("rpc_maxBodyBytes", 2<<20) }

// Logging, ambient.
func (s *Settings) LogLevel() string   { return s.GetString("log_level", "INFO") }
func (s *Settings) LogPretty() bool    { return s.GetBool("log_pretty", true) }
