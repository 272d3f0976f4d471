package domain

import "go.trai.ch/zerr"

// Sentinel errors. Tiers convert these into misses at their boundary; they only
// ever surface in logs and diagnostics.
var (
	// ErrStorageUnavailable indicates the local store could not be opened.
	ErrStorageUnavailable = zerr.New("local store unavailable")

	// ErrStoreMigrate indicates a schema migration failed.
	ErrStoreMigrate = zerr.New("failed to migrate local store")

	// ErrStoreEncode indicates a record could not be serialized.
	ErrStoreEncode = zerr.New("failed to encode record")

	// ErrStoreWrite indicates a write transaction failed.
	ErrStoreWrite = zerr.New("failed to write local store")

	// ErrRemoteUnavailable indicates the remote store is unconfigured or a query failed.
	ErrRemoteUnavailable = zerr.New("remote store unavailable")

	// ErrRemoteStatus indicates the remote store answered with an unexpected status.
	ErrRemoteStatus = zerr.New("unexpected remote status")

	// ErrGenerativeUnavailable indicates the generative service is unconfigured or failed.
	ErrGenerativeUnavailable = zerr.New("generative service unavailable")

	// ErrGenerativeParse indicates generated output could not be parsed.
	ErrGenerativeParse = zerr.New("failed to parse generated content")

	// ErrProbeFailed indicates the heartbeat probe did not reach its target.
	ErrProbeFailed = zerr.New("connectivity probe failed")

	// ErrConfigRead indicates the config file could not be read.
	ErrConfigRead = zerr.New("failed to read config file")

	// ErrConfigParse indicates the config file could not be parsed.
	ErrConfigParse = zerr.New("failed to parse config")
)
