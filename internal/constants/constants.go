package constants

import "time"

const (
	AppName      = "burnerd"
	KeystoreFile = "keystore.json"
	ConfigFile   = "config.yaml"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	NativeAddr = "0x0000000000000000000000000000000000000000"

	// AAD for the encrypted keystore (must match on decrypt).
	KeystoreAAD = "burnerd:keystore:v1"

	// Label mixed into the PIN hash derivation.
	PINLabel = "burnerd:pin:v1"

	// Across fill window on the destination chain. Past it the bridge's own
	// relayer-refund path applies; our responsibility ends at source-chain
	// submission.
	BridgeFillDeadline = 120 * time.Second

	// Minimum spacing between indexer calls. The indexer throttles hard and
	// there is no retry policy, so fan-out must stay sequential.
	IndexerCallInterval = 1100 * time.Millisecond

	// Coarse fixed-interval safety refresh for mounted balance/history views.
	SafetyRefreshInterval = 60 * time.Second

	// Upper bound on waiting for a user operation receipt.
	DefaultReceiptTimeout = 60 * time.Second
)
