package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

type EthereumConfig struct {
	RPCURL          string
	ContractAddress string
	// OperatorKey is the hex private key of the custodial operator account.
	OperatorKey string
}

// EthereumClient talks to the deployed contract over JSON-RPC.
type EthereumClient struct {
	cfg      EthereumConfig
	abi      abi.ABI
	address  common.Address
	key      *ecdsa.PrivateKey
	operator common.Address

	mu       sync.RWMutex
	client   *ethclient.Client
	contract *bind.BoundContract
	chainID  *big.Int

	// txMu serializes signing so nonces are assigned in order.
	txMu sync.Mutex
}

func NewEthereumClient(cfg EthereumConfig) (*EthereumClient, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}
	return &EthereumClient{
		cfg:      cfg,
		abi:      parsed,
		address:  common.HexToAddress(cfg.ContractAddress),
		key:      key,
		operator: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (c *EthereumClient) Connect(ctx context.Context) error {
	client, err := ethclient.DialContext(ctx, c.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrUnavailable, c.cfg.RPCURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("%w: chain id: %v", ErrUnavailable, err)
	}

	c.mu.Lock()
	c.client = client
	c.chainID = chainID
	c.contract = bind.NewBoundContract(c.address, c.abi, client, client, client)
	c.mu.Unlock()
	return nil
}

func (c *EthereumClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		c.client.Close()
		c.client = nil
		c.contract = nil
	}
	return nil
}

// conn returns the live connection, dialing again if the last attempt failed.
func (c *EthereumClient) conn(ctx context.Context) (*ethclient.Client, *bind.BoundContract, error) {
	c.mu.RLock()
	client, contract := c.client, c.contract
	c.mu.RUnlock()
	if client != nil {
		return client, contract, nil
	}
	if err := c.Connect(ctx); err != nil {
		return nil, nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, nil, fmt.Errorf("%w: not connected", ErrUnavailable)
	}
	return c.client, c.contract, nil
}

func (c *EthereumClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	_, contract, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, classify(ctx, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned no values", ErrRejected, method)
	}
	return out, nil
}

// transact signs, sends and waits for method. A transaction that was sent but
// did not confirm is reported as a TxError carrying its hash.
func (c *EthereumClient) transact(ctx context.Context, method string, args ...interface{}) (*types.Receipt, error) {
	client, contract, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	c.txMu.Lock()
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		c.txMu.Unlock()
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	tx, err := contract.Transact(opts, method, args...)
	c.txMu.Unlock()
	if err != nil {
		return nil, classify(ctx, err)
	}

	hash := tx.Hash().Hex()
	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return nil, &TxError{TxHash: hash, Err: classify(ctx, err)}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &TxError{TxHash: hash, Err: fmt.Errorf("%w: %s reverted", ErrRejected, method)}
	}
	return receipt, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) || strings.Contains(err.Error(), "revert") {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func toReceipt(r *types.Receipt, creditID int64) *Receipt {
	return &Receipt{TxHash: r.TxHash.Hex(), BlockNumber: r.BlockNumber.Uint64(), CreditID: creditID}
}

func (c *EthereumClient) IssueCredit(ctx context.Context, req IssueRequest) (*Receipt, error) {
	r, err := c.transact(ctx, "issueCredit",
		common.HexToAddress(req.Producer),
		req.SourceType,
		big.NewInt(req.HydrogenAmount),
		req.MetadataHash,
		big.NewInt(req.CreditAmount),
	)
	if err != nil {
		return nil, err
	}

	issued := c.abi.Events[EventCreditIssued].ID
	for _, lg := range r.Logs {
		if len(lg.Topics) > 1 && lg.Topics[0] == issued {
			return toReceipt(r, new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64()), nil
		}
	}
	return nil, &TxError{TxHash: r.TxHash.Hex(), Err: fmt.Errorf("%w: %s event missing", ErrRejected, EventCreditIssued)}
}

func (c *EthereumClient) TransferCredit(ctx context.Context, from, to string, creditID, amount int64) (*Receipt, error) {
	r, err := c.transact(ctx, "transferCredit",
		common.HexToAddress(from), common.HexToAddress(to), big.NewInt(creditID), big.NewInt(amount))
	if err != nil {
		return nil, err
	}
	return toReceipt(r, creditID), nil
}

func (c *EthereumClient) RetireCredit(ctx context.Context, holder string, creditID, amount int64) (*Receipt, error) {
	r, err := c.transact(ctx, "retireCredit",
		common.HexToAddress(holder), big.NewInt(creditID), big.NewInt(amount))
	if err != nil {
		return nil, err
	}
	return toReceipt(r, creditID), nil
}

func (c *EthereumClient) GrantRole(ctx context.Context, address string, role models.Role) (*Receipt, error) {
	r, err := c.transact(ctx, "grantRole", RoleID(role), common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	return toReceipt(r, 0), nil
}

// creditMetadata mirrors the tuple returned by getCreditMetadata.
type creditMetadata struct {
	CreditId            *big.Int
	Producer            common.Address
	RenewableSourceType string
	ProductionDate      *big.Int
	HydrogenAmount      *big.Int
	MetadataHash        string
	IsRetired           bool
	RetirementDate      *big.Int
	RetiredBy           common.Address
}

func (c *EthereumClient) CreditMetadata(ctx context.Context, creditID int64) (*CreditInfo, error) {
	out, err := c.call(ctx, "getCreditMetadata", big.NewInt(creditID))
	if err != nil {
		return nil, err
	}
	m := *abi.ConvertType(out[0], new(creditMetadata)).(*creditMetadata)
	if m.Producer == (common.Address{}) {
		return nil, fmt.Errorf("credit %d: %w", creditID, ErrNotFound)
	}

	info := &CreditInfo{
		CreditID:       m.CreditId.Int64(),
		Producer:       strings.ToLower(m.Producer.Hex()),
		SourceType:     m.RenewableSourceType,
		ProductionDate: time.Unix(m.ProductionDate.Int64(), 0).UTC(),
		HydrogenAmount: m.HydrogenAmount.Int64(),
		MetadataHash:   m.MetadataHash,
		IsRetired:      m.IsRetired,
	}
	if m.IsRetired {
		at := time.Unix(m.RetirementDate.Int64(), 0).UTC()
		info.RetirementDate = &at
		info.RetiredBy = strings.ToLower(m.RetiredBy.Hex())
	}
	return info, nil
}

func (c *EthereumClient) VerifyCredit(ctx context.Context, creditID int64, metadataHash string) (bool, error) {
	out, err := c.call(ctx, "verifyCredit", big.NewInt(creditID), metadataHash)
	if err != nil {
		return false, err
	}
	ok, _ := out[0].(bool)
	return ok, nil
}

func (c *EthereumClient) BalanceOf(ctx context.Context, address string, creditID int64) (int64, error) {
	out, err := c.call(ctx, "balanceOf", common.HexToAddress(address), big.NewInt(creditID))
	if err != nil {
		return 0, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int).Int64(), nil
}

func (c *EthereumClient) TotalCreditsIssued(ctx context.Context) (int64, error) {
	out, err := c.call(ctx, "getTotalCreditsIssued")
	if err != nil {
		return 0, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int).Int64(), nil
}

func (c *EthereumClient) CreditsOf(ctx context.Context, address string, kind HolderKind) ([]int64, error) {
	var method string
	switch kind {
	case HolderProducer:
		method = "getProducerCredits"
	case HolderConsumer:
		method = "getConsumerCredits"
	default:
		return nil, fmt.Errorf("unknown holder kind %q", kind)
	}
	out, err := c.call(ctx, method, common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	raw := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	ids := make([]int64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.Int64())
	}
	return ids, nil
}

func (c *EthereumClient) HasRole(ctx context.Context, address string, role models.Role) (bool, error) {
	out, err := c.call(ctx, "hasRole", RoleID(role), common.HexToAddress(address))
	if err != nil {
		return false, err
	}
	ok, _ := out[0].(bool)
	return ok, nil
}

func (c *EthereumClient) Events(ctx context.Context, filter EventFilter) ([]Event, error) {
	client, contract, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	names := EventNames
	if filter.Name != "" {
		if _, ok := c.abi.Events[filter.Name]; !ok {
			return nil, fmt.Errorf("unknown event %q", filter.Name)
		}
		names = []string{filter.Name}
	}
	byID := make(map[common.Hash]string, len(names))
	topics := make([]common.Hash, 0, len(names))
	for _, n := range names {
		id := c.abi.Events[n].ID
		byID[id] = n
		topics = append(topics, id)
	}

	q := ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		FromBlock: new(big.Int).SetUint64(filter.FromBlock),
		Topics:    [][]common.Hash{topics},
	}
	if filter.ToBlock != 0 {
		q.ToBlock = new(big.Int).SetUint64(filter.ToBlock)
	}
	logs, err := client.FilterLogs(ctx, q)
	if err != nil {
		return nil, classify(ctx, err)
	}

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		name, ok := byID[lg.Topics[0]]
		if !ok {
			continue
		}
		fields := make(map[string]interface{})
		if err := contract.UnpackLogIntoMap(fields, name, lg); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", name, err)
		}
		events = append(events, decodeEvent(name, fields, lg))
	}
	return events, nil
}

func decodeEvent(name string, fields map[string]interface{}, lg types.Log) Event {
	e := Event{
		Name:        name,
		CreditID:    bigField(fields, "creditId"),
		Amount:      bigField(fields, "amount"),
		TxHash:      lg.TxHash.Hex(),
		BlockNumber: lg.BlockNumber,
		Timestamp:   time.Unix(bigField(fields, "timestamp"), 0).UTC(),
	}
	switch name {
	case EventCreditIssued:
		e.To = addrField(fields, "producer")
		e.HydrogenAmount = bigField(fields, "hydrogenAmount")
		e.SourceType, _ = fields["renewableSourceType"].(string)
		e.MetadataHash, _ = fields["metadataHash"].(string)
	case EventCreditTransferred:
		e.From = addrField(fields, "from")
		e.To = addrField(fields, "to")
	case EventCreditRetired:
		e.From = addrField(fields, "retiredBy")
	}
	return e
}

func bigField(fields map[string]interface{}, key string) int64 {
	if v, ok := fields[key].(*big.Int); ok {
		return v.Int64()
	}
	return 0
}

func addrField(fields map[string]interface{}, key string) string {
	if v, ok := fields[key].(common.Address); ok {
		return strings.ToLower(v.Hex())
	}
	return ""
}

func (c *EthereumClient) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	client, _, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	block, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}

	c.mu.RLock()
	chainID := c.chainID.Int64()
	c.mu.RUnlock()
	return &NetworkInfo{
		ChainID:         chainID,
		Name:            networkName(chainID),
		BlockNumber:     block,
		GasPrice:        gasPrice.String(),
		ContractAddress: strings.ToLower(c.address.Hex()),
		Operator:        strings.ToLower(c.operator.Hex()),
	}, nil
}

func (c *EthereumClient) TransactionStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	client, _, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	hash := common.HexToHash(txHash)

	receipt, err := client.TransactionReceipt(ctx, hash)
	if err == nil {
		st := &TxStatus{
			Hash:        hash.Hex(),
			State:       TxFailed,
			BlockNumber: receipt.BlockNumber.Uint64(),
			GasUsed:     receipt.GasUsed,
			To:          strings.ToLower(c.address.Hex()),
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			st.State = TxSuccess
		}
		return st, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return nil, classify(ctx, err)
	}

	_, pending, err := client.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return &TxStatus{Hash: hash.Hex(), State: TxUnknown}, nil
	}
	if err != nil {
		return nil, classify(ctx, err)
	}
	if pending {
		return &TxStatus{Hash: hash.Hex(), State: TxPending}, nil
	}
	return &TxStatus{Hash: hash.Hex(), State: TxUnknown}, nil
}
