package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Method names used for fault injection.
const (
	MethodIssue    = "issueCredit"
	MethodTransfer = "transferCredit"
	MethodRetire   = "retireCredit"
	MethodGrant    = "grantRole"
)

type fault struct {
	err         error
	afterCommit bool
}

// MemoryLedger simulates the settlement contract in process. It applies the
// same rules as the deployed contract: credit ids start at 0, balances are
// kept per address and every write mines a new block.
type MemoryLedger struct {
	mu        sync.Mutex
	chainID   int64
	operator  string
	contract  string
	connected bool
	block     uint64
	nonce     uint64
	nextID    int64
	credits   map[int64]*CreditInfo
	balances  map[int64]map[string]int64
	produced  map[string][]int64
	received  map[string][]int64
	roles     map[models.Role]map[string]bool
	events    []Event
	txs       map[string]TxStatus
	faults    map[string][]fault
	now       func() time.Time
}

func NewMemoryLedger(chainID int64) *MemoryLedger {
	return &MemoryLedger{
		chainID:  chainID,
		operator: "0x00000000000000000000000000000000000000aa",
		contract: "0x00000000000000000000000000000000000000cc",
		credits:  make(map[int64]*CreditInfo),
		balances: make(map[int64]map[string]int64),
		produced: make(map[string][]int64),
		received: make(map[string][]int64),
		roles:    make(map[models.Role]map[string]bool),
		txs:      make(map[string]TxStatus),
		faults:   make(map[string][]fault),
		now:      time.Now,
	}
}

// FailNext makes the next call to method fail with err before any state
// changes.
func (l *MemoryLedger) FailNext(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[method] = append(l.faults[method], fault{err: err})
}

// FailNextAfterCommit makes the next call to method apply its state change
// and then report err wrapped in a TxError, as a node does when the receipt
// wait times out after broadcast.
func (l *MemoryLedger) FailNextAfterCommit(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[method] = append(l.faults[method], fault{err: err, afterCommit: true})
}

func (l *MemoryLedger) popFault(method string) (fault, bool) {
	q := l.faults[method]
	if len(q) == 0 {
		return fault{}, false
	}
	l.faults[method] = q[1:]
	return q[0], true
}

func (l *MemoryLedger) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = true
	return nil
}

func (l *MemoryLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	return nil
}

// begin checks connectivity and the caller's deadline. It must be called
// with l.mu held.
func (l *MemoryLedger) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !l.connected {
		return fmt.Errorf("%w: not connected", ErrUnavailable)
	}
	return nil
}

func (l *MemoryLedger) write(ctx context.Context, method string, apply func(txHash string, block uint64, at time.Time) (int64, error)) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.begin(ctx); err != nil {
		return nil, err
	}
	f, faulted := l.popFault(method)
	if faulted && !f.afterCommit {
		return nil, f.err
	}

	l.nonce++
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[:8], uint64(l.chainID))
	binary.BigEndian.PutUint64(seed[8:], l.nonce)
	txHash := crypto.Keccak256Hash(seed[:], []byte(method)).Hex()

	block := l.block + 1
	at := l.now().UTC()
	creditID, err := apply(txHash, block, at)
	if err != nil {
		l.txs[txHash] = TxStatus{Hash: txHash, State: TxFailed, BlockNumber: block, To: l.contract}
		l.block = block
		return nil, &TxError{TxHash: txHash, Err: fmt.Errorf("%w: %v", ErrRejected, err)}
	}
	l.block = block
	l.txs[txHash] = TxStatus{Hash: txHash, State: TxSuccess, BlockNumber: block, GasUsed: 21000, To: l.contract}

	if faulted {
		return nil, &TxError{TxHash: txHash, Err: f.err}
	}
	return &Receipt{TxHash: txHash, BlockNumber: block, CreditID: creditID}, nil
}

func (l *MemoryLedger) IssueCredit(ctx context.Context, req IssueRequest) (*Receipt, error) {
	return l.write(ctx, MethodIssue, func(txHash string, block uint64, at time.Time) (int64, error) {
		producer, err := NormalizeAddress(req.Producer)
		if err != nil || producer == zeroAddress {
			return 0, errors.New("invalid producer address")
		}
		if req.HydrogenAmount <= 0 {
			return 0, errors.New("hydrogen amount must be positive")
		}
		if req.CreditAmount <= 0 {
			return 0, errors.New("credit amount must be positive")
		}
		if req.MetadataHash == "" {
			return 0, errors.New("metadata hash required")
		}

		id := l.nextID
		l.nextID++
		l.credits[id] = &CreditInfo{
			CreditID:       id,
			Producer:       producer,
			SourceType:     req.SourceType,
			ProductionDate: at,
			HydrogenAmount: req.HydrogenAmount,
			MetadataHash:   req.MetadataHash,
		}
		l.balances[id] = map[string]int64{producer: req.CreditAmount}
		l.produced[producer] = append(l.produced[producer], id)
		l.events = append(l.events, Event{
			Name: EventCreditIssued, CreditID: id, To: producer, HydrogenAmount: req.HydrogenAmount,
			SourceType: req.SourceType, MetadataHash: req.MetadataHash,
			TxHash: txHash, BlockNumber: block, Timestamp: at,
		})
		return id, nil
	})
}

func (l *MemoryLedger) TransferCredit(ctx context.Context, from, to string, creditID, amount int64) (*Receipt, error) {
	return l.write(ctx, MethodTransfer, func(txHash string, block uint64, at time.Time) (int64, error) {
		sender, err := NormalizeAddress(from)
		if err != nil {
			return 0, errors.New("invalid sender address")
		}
		recipient, err := NormalizeAddress(to)
		if err != nil || recipient == zeroAddress {
			return 0, errors.New("invalid recipient address")
		}
		c, ok := l.credits[creditID]
		if !ok {
			return 0, errors.New("credit does not exist")
		}
		if c.IsRetired {
			return 0, errors.New("credit is retired")
		}
		if amount <= 0 {
			return 0, errors.New("amount must be positive")
		}
		bal := l.balances[creditID]
		if bal[sender] < amount {
			return 0, errors.New("insufficient credits")
		}
		bal[sender] -= amount
		if _, seen := bal[recipient]; !seen {
			l.received[recipient] = append(l.received[recipient], creditID)
		}
		bal[recipient] += amount
		l.events = append(l.events, Event{
			Name: EventCreditTransferred, CreditID: creditID, From: sender, To: recipient, Amount: amount,
			TxHash: txHash, BlockNumber: block, Timestamp: at,
		})
		return creditID, nil
	})
}

func (l *MemoryLedger) RetireCredit(ctx context.Context, holder string, creditID, amount int64) (*Receipt, error) {
	return l.write(ctx, MethodRetire, func(txHash string, block uint64, at time.Time) (int64, error) {
		owner, err := NormalizeAddress(holder)
		if err != nil {
			return 0, errors.New("invalid holder address")
		}
		c, ok := l.credits[creditID]
		if !ok {
			return 0, errors.New("credit does not exist")
		}
		if c.IsRetired {
			return 0, errors.New("credit already retired")
		}
		if amount <= 0 {
			return 0, errors.New("amount must be positive")
		}
		bal := l.balances[creditID]
		if bal[owner] < amount {
			return 0, errors.New("insufficient credits")
		}
		bal[owner] -= amount
		c.IsRetired = true
		c.RetirementDate = &at
		c.RetiredBy = owner
		l.events = append(l.events, Event{
			Name: EventCreditRetired, CreditID: creditID, From: owner, Amount: amount,
			TxHash: txHash, BlockNumber: block, Timestamp: at,
		})
		return creditID, nil
	})
}

func (l *MemoryLedger) GrantRole(ctx context.Context, address string, role models.Role) (*Receipt, error) {
	return l.write(ctx, MethodGrant, func(string, uint64, time.Time) (int64, error) {
		addr, err := NormalizeAddress(address)
		if err != nil {
			return 0, err
		}
		if !role.Valid() {
			return 0, fmt.Errorf("unknown role %q", role)
		}
		if l.roles[role] == nil {
			l.roles[role] = make(map[string]bool)
		}
		l.roles[role][addr] = true
		return 0, nil
	})
}

func (l *MemoryLedger) CreditMetadata(ctx context.Context, creditID int64) (*CreditInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx); err != nil {
		return nil, err
	}
	c, ok := l.credits[creditID]
	if !ok {
		return nil, fmt.Errorf("credit %d: %w", creditID, ErrNotFound)
	}
	info := *c
	return &info, nil
}

func (l *MemoryLedger) VerifyCredit(ctx context.Context, creditID int64, metadataHash string) (bool, error) {
	info, err := l.CreditMetadata(ctx, creditID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return strings.EqualFold(info.MetadataHash, metadataHash), nil
}

func (l *MemoryLedger) BalanceOf(ctx context.Context, address string, creditID int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx); err != nil {
		return 0, err
	}
	addr, err := NormalizeAddress(address)
	if err != nil {
		return 0, err
	}
	return l.balances[creditID][addr], nil
}

func (l *MemoryLedger) TotalCreditsIssued(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx); err != nil {
		return 0, err
	}
	return l.nextID, nil
}

func (l *MemoryLedger) CreditsOf(ctx context.Context, address string, kind HolderKind) ([]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx); err != nil {
		return nil, err
	}
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	var ids []int64
	switch kind {
	case HolderProducer:
		ids = l.produced[addr]
	case HolderConsumer:
		ids = l.received[addr]
	default:
		return nil, fmt.Errorf("unknown holder kind %q", kind)
	}
	return append([]int64{}, ids...), nil
}

func (l *MemoryLedger) HasRole(ctx context.Context, address string, role models.Role) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx); err != nil {
		return false, err
	}
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	return l.roles[role][addr], nil
}

func (l *MemoryLedger) Events(ctx context.Context, filter EventFilter) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx); err != nil {
		return nil, err
	}
	out := make([]Event, 0)
	for _, e := range l.events {
		if filter.Name != "" && e.Name != filter.Name {
			continue
		}
		if e.BlockNumber < filter.FromBlock {
			continue
		}
		if filter.ToBlock != 0 && e.BlockNumber > filter.ToBlock {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *MemoryLedger) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx); err != nil {
		return nil, err
	}
	return &NetworkInfo{
		ChainID:         l.chainID,
		Name:            networkName(l.chainID),
		BlockNumber:     l.block,
		GasPrice:        "0",
		ContractAddress: l.contract,
		Operator:        l.operator,
	}, nil
}

func (l *MemoryLedger) TransactionStatus(ctx context.Context, txHash string) (*TxStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.begin(ctx); err != nil {
		return nil, err
	}
	st, ok := l.txs[common.HexToHash(txHash).Hex()]
	if !ok {
		return &TxStatus{Hash: txHash, State: TxUnknown}, nil
	}
	return &st, nil
}

var zeroAddress = strings.ToLower(common.Address{}.Hex())

func networkName(chainID int64) string {
	switch chainID {
	case 1:
		return "mainnet"
	case 11155111:
		return "sepolia"
	case 137:
		return "polygon"
	case 80002:
		return "amoy"
	case 31337:
		return "hardhat"
	default:
		return "unknown"
	}
}
