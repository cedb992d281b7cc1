package constants

import "time"

const (
	DelayBetweenRPCCalls      = 200             // delay in milliseconds between RPC calls
	TransactionReceiptTimeout = 2 * time.Second // timeout for a single receipt lookup
	ConfirmPollInterval       = 500 * time.Millisecond
	HostTimeout               = 30 * time.Second // timeout for the HTTP host client
	TLSHandshakeTimeout       = 10 * time.Second // timeout for TLS handshake
	ResponseHeaderTimeout     = 20 * time.Second // timeout for response header
	ExpectContinueTimeout     = 1 * time.Second  // timeout for expect continue
	MaxRetries                = 10               // maximum number of retries for receipt polling
	MaxResponseBodySize       = 10 * 1024 * 1024 // maximum response body size in bytes (10MB)
)

// Chain tags
const (
	ChainEVM    = "EVM"
	ChainSolana = "SOLANA"
	ChainTron   = "TRON"
)

// Native currency decimals per chain family
const (
	EVMDecimals    = 18 // wei
	SolanaDecimals = 9  // lamports
	TronDecimals   = 6  // sun
)

const (
	SymbolETH = "ETH"
	SymbolSOL = "SOL"
	SymbolTRX = "TRX"
)

// Change events emitted by wallet state
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventChainChanged    = "chainChanged"
	EventAccountsChanged = "accountsChanged"
	EventStateChanged    = "stateChanged"
)

// EVM host methods
const (
	MethodEthRequestAccounts     = "eth_requestAccounts"
	MethodEthAccounts            = "eth_accounts"
	MethodEthChainID             = "eth_chainId"
	MethodEthGetBalance          = "eth_getBalance"
	MethodEthSendTransaction     = "eth_sendTransaction"
	MethodEthSignTransaction     = "eth_signTransaction"
	MethodEthSendRawTransaction  = "eth_sendRawTransaction"
	MethodEthSignTypedDataV4     = "eth_signTypedData_v4"
	MethodPersonalSign           = "personal_sign"
	MethodWalletSwitchChain      = "wallet_switchEthereumChain"
	MethodWalletAddChain         = "wallet_addEthereumChain"
	MethodWalletWatchAsset       = "wallet_watchAsset"
	MethodWalletRequestPerms     = "wallet_requestPermissions"
	MethodWalletGetPermissions   = "wallet_getPermissions"
	MethodWalletRevokePermission = "wallet_revokePermissions"
)

// Solana host methods
const (
	MethodSolConnect         = "connect"
	MethodSolDisconnect      = "disconnect"
	MethodSolSignMessage     = "signMessage"
	MethodSolSignTransaction = "signTransaction"
	MethodSolSwitchNetwork   = "switchNetwork"
)

// Tron host methods
const (
	MethodTronRequestAccounts = "tron_requestAccounts"
	MethodTronGetBalance      = "tron_getBalance"
	MethodTronSignTransaction = "tron_signTransaction"
	MethodTronSignMessage     = "tron_signMessage"
	MethodTronSendTransaction = "tron_sendTransaction"
)

// Host error code returned by wallet_switchEthereumChain when the chain is unknown to the wallet
const UnrecognizedChainCode = 4902

// Defaults used for wallet_addEthereumChain when no metadata is known
const (
	DefaultChainName      = "Custom EVM Chain"
	DefaultCurrencyName   = "Token"
	DefaultCurrencySymbol = "TKN"
)

// Solana clusters
const (
	NetworkSolana        = "mainnet-beta"
	NetworkSolanaDevnet  = "devnet"
	NetworkSolanaTestnet = "testnet"
)

// Tron networks
const (
	NetworkTron       = "mainnet"
	NetworkTronShasta = "shasta"
	NetworkTronNile   = "nile"
)

const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

var OfficialRPCEndpoints = map[string][]string{
	NetworkSolana:        {"https://api.mainnet-beta.solana.com"},
	NetworkSolanaDevnet:  {"https://api.devnet.solana.com"},
	NetworkSolanaTestnet: {"https://api.testnet.solana.com"},
}

var TronGridEndpoints = map[string]string{
	NetworkTron:       "https://api.trongrid.io",
	NetworkTronShasta: "https://api.shasta.trongrid.io",
	NetworkTronNile:   "https://nile.trongrid.io",
}

// NativeSymbols maps well known EVM chain IDs to their native currency symbol
var NativeSymbols = map[int64]string{
	1:     "ETH",
	10:    "ETH",
	56:    "BNB",
	137:   "POL",
	8453:  "ETH",
	42161: "ETH",
	43114: "AVAX",
	84532: "ETH",
}
