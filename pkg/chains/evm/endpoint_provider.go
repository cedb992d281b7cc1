package evm

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/sigweihq/walletbridge/pkg/constants"
	"github.com/sigweihq/walletbridge/pkg/utils"
)

const chainListURL = "https://chainlist.org/rpcs.json"

// NativeCurrency describes a chain's native token for wallet_addEthereumChain
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainMetadata is what a wallet needs to add an unknown chain
type ChainMetadata struct {
	ChainID   int64
	Name      string
	Currency  NativeCurrency
	RPCURLs   []string
	Explorers []string
}

// MetadataProvider looks up chain metadata by numeric chain id
type MetadataProvider interface {
	Lookup(ctx context.Context, chainID int64) (*ChainMetadata, bool)
}

// StaticMetadata is a fixed MetadataProvider
type StaticMetadata map[int64]ChainMetadata

// Lookup implements MetadataProvider
func (s StaticMetadata) Lookup(_ context.Context, chainID int64) (*ChainMetadata, bool) {
	m, ok := s[chainID]
	if !ok {
		return nil, false
	}
	return &m, true
}

// ChainListResponse represents a chain entry from chainlist.org/rpcs.json
type ChainListResponse struct {
	ChainID        int            `json:"chainId"`
	Name           string         `json:"name"`
	NativeCurrency NativeCurrency `json:"nativeCurrency"`
	RPC            []struct {
		URL string `json:"url"`
	} `json:"rpc"`
	Explorers []struct {
		URL string `json:"url"`
	} `json:"explorers"`
}

// ChainListMetadataProvider fetches chain metadata from chainlist.org
// and health checks RPC endpoints so reliable ones are offered first
type ChainListMetadataProvider struct {
	url         string
	client      *http.Client
	healthCheck func(ctx context.Context, endpoint string) bool
	logger      *slog.Logger

	mu     sync.RWMutex
	chains map[int64]*ChainMetadata
}

// NewChainListMetadataProvider creates a provider backed by chainlist.org
func NewChainListMetadataProvider(logger *slog.Logger) *ChainListMetadataProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainListMetadataProvider{
		url:         chainListURL,
		client:      utils.CreateHTTPClientWithTimeouts(),
		healthCheck: isEndpointHealthy,
		logger:      logger,
		chains:      make(map[int64]*ChainMetadata),
	}
}

// Lookup implements MetadataProvider. It fetches the list on first use.
func (p *ChainListMetadataProvider) Lookup(ctx context.Context, chainID int64) (*ChainMetadata, bool) {
	p.mu.RLock()
	loaded := len(p.chains) > 0
	m, ok := p.chains[chainID]
	p.mu.RUnlock()

	if !loaded {
		if err := p.Refresh(ctx, chainID); err != nil {
			p.logger.Warn("failed to fetch chain metadata from chainlist.org", "error", err)
			return nil, false
		}
		p.mu.RLock()
		m, ok = p.chains[chainID]
		p.mu.RUnlock()
	}
	if !ok {
		return nil, false
	}
	copied := *m
	return &copied, true
}

// Refresh fetches fresh metadata. Endpoints of the listed chain ids are health checked.
func (p *ChainListMetadataProvider) Refresh(ctx context.Context, healthCheckChains ...int64) error {
	entries, err := p.fetchAllChains(ctx)
	if err != nil {
		return err
	}

	fresh := make(map[int64]*ChainMetadata, len(entries))
	for _, entry := range entries {
		fresh[int64(entry.ChainID)] = toMetadata(entry)
	}

	for _, id := range healthCheckChains {
		if m, ok := fresh[id]; ok {
			m.RPCURLs = p.prioritize(ctx, id, m.RPCURLs)
		}
	}

	p.mu.Lock()
	p.chains = fresh
	p.mu.Unlock()
	return nil
}

func toMetadata(entry ChainListResponse) *ChainMetadata {
	m := &ChainMetadata{
		ChainID:  int64(entry.ChainID),
		Name:     entry.Name,
		Currency: entry.NativeCurrency,
	}
	for _, rpc := range entry.RPC {
		// Only include HTTPS URLs and exclude templated URLs
		if strings.HasPrefix(rpc.URL, "https://") && !strings.Contains(rpc.URL, "${") {
			m.RPCURLs = append(m.RPCURLs, rpc.URL)
		}
	}
	for _, explorer := range entry.Explorers {
		if explorer.URL != "" {
			m.Explorers = append(m.Explorers, explorer.URL)
		}
	}
	return m
}

// fetchAllChains fetches chain data from chainlist.org
func (p *ChainListMetadataProvider) fetchAllChains(ctx context.Context) ([]ChainListResponse, error) {
	result, err := utils.MakeJSONRequest[[]ChainListResponse](ctx, p.client, http.MethodGet, p.url, nil, nil, "chainlist")
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// prioritize checks endpoint health and puts working endpoints first
func (p *ChainListMetadataProvider) prioritize(ctx context.Context, chainID int64, endpoints []string) []string {
	var healthyEndpoints, unhealthyEndpoints []string
	for _, endpoint := range endpoints {
		if p.healthCheck(ctx, endpoint) {
			healthyEndpoints = append(healthyEndpoints, endpoint)
		} else {
			unhealthyEndpoints = append(unhealthyEndpoints, endpoint)
		}
	}

	p.logger.Debug("health check complete",
		"chainID", chainID,
		"healthy", len(healthyEndpoints),
		"unhealthy", len(unhealthyEndpoints))

	// Healthy endpoints first, then unhealthy as backup
	return append(healthyEndpoints, unhealthyEndpoints...)
}

// defaultChainParams builds wallet_addEthereumChain params when nothing better is known
func defaultChainParams(chainID string, rpcURLs []string) ChainParams {
	return ChainParams{
		ChainID:   chainID,
		ChainName: constants.DefaultChainName,
		NativeCurrency: NativeCurrency{
			Name:     constants.DefaultCurrencyName,
			Symbol:   constants.DefaultCurrencySymbol,
			Decimals: constants.EVMDecimals,
		},
		RPCURLs:           rpcURLs,
		BlockExplorerURLs: []string{},
	}
}
