// Package anchor reads on-chain credential records through an Ethereum
// JSON-RPC endpoint.
package anchor

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/ports"
)

// registryABI covers the single read the trust core performs.
const registryABI = `[{
	"name": "getCredential",
	"type": "function",
	"stateMutability": "view",
	"inputs": [{"name": "subject", "type": "address"}],
	"outputs": [
		{"name": "credentialHash", "type": "bytes32"},
		{"name": "labId", "type": "uint256"},
		{"name": "revoked", "type": "bool"},
		{"name": "issuedAt", "type": "uint256"}
	]
}]`

// readTimeout bounds the RPC call so a stalled provider cannot hold the
// caller's request.
const readTimeout = 5 * time.Second

// EthReader reads anchor records from a credential registry contract. It
// is constructed once at startup and injected into the credential service.
type EthReader struct {
	client   *ethclient.Client
	contract common.Address
	parsed   abi.ABI
	log      zerolog.Logger
}

// NewEthReader dials the RPC endpoint and prepares the registry ABI.
func NewEthReader(rpcURL, contractAddress string, log zerolog.Logger) (*EthReader, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, err
	}
	return &EthReader{
		client:   client,
		contract: common.HexToAddress(contractAddress),
		parsed:   parsed,
		log:      log.With().Str("component", "anchor").Logger(),
	}, nil
}

var _ ports.AnchorReader = (*EthReader)(nil)

// ReadAnchor returns the subject's on-chain record, or nil for "no usable
// anchor": no record (issuedAt == 0), RPC failure, or malformed response.
// The cases are indistinguishable to callers; failures degrade to
// unanchored verification rather than aborting the request.
func (r *EthReader) ReadAnchor(ctx context.Context, walletAddress string) *core.AnchorRecord {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	input, err := r.parsed.Pack("getCredential", common.HexToAddress(walletAddress))
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to pack anchor call")
		return nil
	}

	output, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &r.contract,
		Data: input,
	}, nil)
	if err != nil {
		r.log.Warn().Err(err).Str("wallet", walletAddress).Msg("anchor read failed, treating as no anchor")
		return nil
	}

	values, err := r.parsed.Unpack("getCredential", output)
	if err != nil || len(values) != 4 {
		r.log.Warn().Err(err).Msg("malformed anchor response, treating as no anchor")
		return nil
	}

	hash, okHash := values[0].([32]byte)
	labID, okLab := toUint64(values[1])
	revoked, okRevoked := values[2].(bool)
	issuedAt, okIssued := toUint64(values[3])
	if !okHash || !okLab || !okRevoked || !okIssued {
		r.log.Warn().Msg("unexpected anchor field types, treating as no anchor")
		return nil
	}
	if issuedAt == 0 {
		return nil
	}

	return &core.AnchorRecord{
		CredentialHash: hexutil.Encode(hash[:]),
		LabID:          labID,
		Revoked:        revoked,
		IssuedAt:       issuedAt,
	}
}

// Close releases the RPC connection.
func (r *EthReader) Close() {
	r.client.Close()
}

func toUint64(v interface{}) (uint64, bool) {
	n, ok := v.(*big.Int)
	if !ok || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}
