package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps every record in process. Records are copied on the way in
// and out, so callers never share state with the store.
type MemoryStore struct {
	// txMu serializes WithTx callers; mu guards the maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	users   map[uuid.UUID]*models.User
	credits map[uuid.UUID]*models.Credit
	ops     map[uuid.UUID]*models.LedgerOperation
	tokens  map[uuid.UUID]*models.RefreshToken

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[uuid.UUID]*models.User),
		credits: make(map[uuid.UUID]*models.Credit),
		ops:     make(map[uuid.UUID]*models.LedgerOperation),
		tokens:  make(map[uuid.UUID]*models.RefreshToken),
		now:     time.Now,
	}
}

func (s *MemoryStore) Users() UserRepository                 { return memUsers{s, nil} }
func (s *MemoryStore) Credits() CreditRepository             { return memCredits{s, nil} }
func (s *MemoryStore) Operations() OperationRepository       { return memOperations{s, nil} }
func (s *MemoryStore) RefreshTokens() RefreshTokenRepository { return memTokens{s, nil} }

// undoLog holds the value each key had before a transaction first wrote it.
// A nil value means the key did not exist.
type undoLog struct {
	users   map[uuid.UUID]*models.User
	credits map[uuid.UUID]*models.Credit
	ops     map[uuid.UUID]*models.LedgerOperation
	tokens  map[uuid.UUID]*models.RefreshToken
}

func newUndoLog() *undoLog {
	return &undoLog{
		users:   make(map[uuid.UUID]*models.User),
		credits: make(map[uuid.UUID]*models.Credit),
		ops:     make(map[uuid.UUID]*models.LedgerOperation),
		tokens:  make(map[uuid.UUID]*models.RefreshToken),
	}
}

// remember records the current value of id in m. Callers hold mu.
func remember[V any](log, m map[uuid.UUID]*V, id uuid.UUID) {
	if _, seen := log[id]; seen {
		return
	}
	log[id] = m[id]
}

func restore[V any](m, log map[uuid.UUID]*V) {
	for id, prev := range log {
		if prev == nil {
			delete(m, id)
		} else {
			m[id] = prev
		}
	}
}

// memTx is the Store handed to a WithTx callback. Its writes are journaled so
// a rollback undoes only the keys the callback touched.
type memTx struct {
	s    *MemoryStore
	undo *undoLog
}

func (t memTx) Users() UserRepository                 { return memUsers{t.s, t.undo} }
func (t memTx) Credits() CreditRepository             { return memCredits{t.s, t.undo} }
func (t memTx) Operations() OperationRepository       { return memOperations{t.s, t.undo} }
func (t memTx) RefreshTokens() RefreshTokenRepository { return memTokens{t.s, t.undo} }

// WithTx joins the enclosing transaction.
func (t memTx) WithTx(ctx context.Context, fn func(Store) error) error { return fn(t) }

func (t memTx) Ping(ctx context.Context) error { return t.s.Ping(ctx) }

func (t memTx) Close() error { return nil }

// WithTx undoes the writes fn made when it fails. Writes made outside fn
// while it runs are kept. Stored records are replaced rather than mutated, so
// the undo log holds the previous pointers.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	undo := newUndoLog()
	if err := fn(memTx{s: s, undo: undo}); err != nil {
		s.mu.Lock()
		restore(s.users, undo.users)
		restore(s.credits, undo.credits)
		restore(s.ops, undo.ops)
		restore(s.tokens, undo.tokens)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }

func pageOf[T any](items []T, p Page) []T {
	if p.Size <= 0 {
		return items
	}
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

type memUsers struct {
	s    *MemoryStore
	undo *undoLog
}

func (r memUsers) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.ID == user.ID || u.Email == user.Email || u.Username == user.Username || u.WalletAddress == user.WalletAddress {
			return ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := r.s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	r.journal(user.ID)
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r memUsers) journal(id uuid.UUID) {
	if r.undo != nil {
		remember(r.undo.users, r.s.users, id)
	}
}

func (r memUsers) Update(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	for _, u := range r.s.users {
		if u.ID != user.ID && (u.Email == user.Email || u.Username == user.Username || u.WalletAddress == user.WalletAddress) {
			return ErrDuplicate
		}
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = r.s.now()
	r.journal(user.ID)
	cp := *user
	r.s.users[user.ID] = &cp
	return nil
}

func (r memUsers) find(match func(*models.User) bool) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r memUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r memUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(email)
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r memUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Username == username })
}

func (r memUsers) FindByWallet(ctx context.Context, wallet string) (*models.User, error) {
	wallet = strings.ToLower(wallet)
	return r.find(func(u *models.User) bool { return u.WalletAddress == wallet })
}

func (r memUsers) List(ctx context.Context, filter UserFilter, page Page) ([]models.User, int64, error) {
	r.s.mu.RLock()
	var out []models.User
	for _, u := range r.s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.IsVerified != nil && u.IsVerified != *filter.IsVerified {
			continue
		}
		if filter.ActiveOnly && !u.IsActive {
			continue
		}
		out = append(out, *u)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return pageOf(out, page), int64(len(out)), nil
}

func (r memUsers) CountByRole(ctx context.Context) ([]RoleCount, error) {
	r.s.mu.RLock()
	counts := make(map[models.Role]*RoleCount)
	for _, u := range r.s.users {
		if !u.IsActive {
			continue
		}
		rc, ok := counts[u.Role]
		if !ok {
			rc = &RoleCount{Role: u.Role}
			counts[u.Role] = rc
		}
		rc.Count++
		if u.IsVerified {
			rc.VerifiedCount++
		}
	}
	r.s.mu.RUnlock()

	out := make([]RoleCount, 0, len(counts))
	for _, rc := range counts {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

type memCredits struct {
	s    *MemoryStore
	undo *undoLog
}

func (r memCredits) Create(ctx context.Context, credit *models.Credit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, c := range r.s.credits {
		if c.ID == credit.ID || c.CreditID == credit.CreditID || strings.EqualFold(c.BlockchainTxHash, credit.BlockchainTxHash) {
			return ErrDuplicate
		}
	}
	if credit.ID == uuid.Nil {
		credit.ID = uuid.New()
	}
	if credit.Version == 0 {
		credit.Version = 1
	}
	now := r.s.now()
	credit.CreatedAt, credit.UpdatedAt = now, now
	r.journal(credit.ID)
	r.s.credits[credit.ID] = credit.Clone()
	return nil
}

func (r memCredits) journal(id uuid.UUID) {
	if r.undo != nil {
		remember(r.undo.credits, r.s.credits, id)
	}
}

func (r memCredits) Update(ctx context.Context, credit *models.Credit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.credits[credit.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Version != credit.Version {
		return ErrVersionConflict
	}
	credit.Version++
	credit.CreatedAt = existing.CreatedAt
	credit.UpdatedAt = r.s.now()
	r.journal(credit.ID)
	r.s.credits[credit.ID] = credit.Clone()
	return nil
}

func (r memCredits) FindByID(ctx context.Context, id uuid.UUID) (*models.Credit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.credits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (r memCredits) FindByCreditID(ctx context.Context, creditID int64) (*models.Credit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.credits {
		if c.CreditID == creditID {
			return c.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func matchCredit(c *models.Credit, f CreditFilter) bool {
	switch {
	case f.Status != nil && c.Status != *f.Status:
		return false
	case f.SourceType != nil && c.SourceType != *f.SourceType:
		return false
	case f.ProducerID != nil && c.ProducerID != *f.ProducerID:
		return false
	case f.CertifierID != nil && c.CertifierID != *f.CertifierID:
		return false
	case f.OwnerID != nil && c.CurrentOwnerID != *f.OwnerID:
		return false
	}
	return true
}

func (r memCredits) List(ctx context.Context, filter CreditFilter, page Page) ([]models.Credit, int64, error) {
	r.s.mu.RLock()
	var out []models.Credit
	for _, c := range r.s.credits {
		if matchCredit(c, filter) {
			out = append(out, *c.Clone())
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreditID > out[j].CreditID
	})
	return pageOf(out, page), int64(len(out)), nil
}

func (r memCredits) Aggregate(ctx context.Context) (*CreditAggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	agg := &CreditAggregate{}
	bySource := make(map[models.SourceType]*SourceStat)
	byStatus := make(map[models.CreditStatus]*StatusStat)
	for _, c := range r.s.credits {
		agg.Count++
		agg.TotalHydrogen += c.HydrogenAmount
		agg.TotalCreditAmount += c.CreditAmount
		if c.IsRetired {
			agg.RetiredCount++
			agg.RetiredAmount += c.RetirementDetails.Amount
		} else {
			agg.ActiveBalance += c.CurrentBalance
			if c.CurrentBalance > 0 {
				agg.ActiveCount++
			}
		}
		if c.VerificationStatus.IsVerified {
			agg.VerifiedCount++
		}

		src, ok := bySource[c.SourceType]
		if !ok {
			src = &SourceStat{SourceType: c.SourceType}
			bySource[c.SourceType] = src
		}
		src.Count++
		src.TotalHydrogen += c.HydrogenAmount
		src.TotalCreditAmount += c.CreditAmount

		st, ok := byStatus[c.Status]
		if !ok {
			st = &StatusStat{Status: c.Status}
			byStatus[c.Status] = st
		}
		st.Count++
	}

	for _, s := range bySource {
		agg.BySource = append(agg.BySource, *s)
	}
	sort.Slice(agg.BySource, func(i, j int) bool {
		if agg.BySource[i].Count != agg.BySource[j].Count {
			return agg.BySource[i].Count > agg.BySource[j].Count
		}
		return agg.BySource[i].SourceType < agg.BySource[j].SourceType
	})
	for _, s := range byStatus {
		agg.ByStatus = append(agg.ByStatus, *s)
	}
	sort.Slice(agg.ByStatus, func(i, j int) bool {
		if agg.ByStatus[i].Count != agg.ByStatus[j].Count {
			return agg.ByStatus[i].Count > agg.ByStatus[j].Count
		}
		return agg.ByStatus[i].Status < agg.ByStatus[j].Status
	})
	return agg, nil
}

type memOperations struct {
	s    *MemoryStore
	undo *undoLog
}

func (r memOperations) Create(ctx context.Context, op *models.LedgerOperation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	if _, exists := r.s.ops[op.ID]; exists {
		return ErrDuplicate
	}
	now := r.s.now()
	op.CreatedAt, op.UpdatedAt = now, now
	r.journal(op.ID)
	cp := *op
	r.s.ops[op.ID] = &cp
	return nil
}

func (r memOperations) journal(id uuid.UUID) {
	if r.undo != nil {
		remember(r.undo.ops, r.s.ops, id)
	}
}

func (r memOperations) Update(ctx context.Context, op *models.LedgerOperation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.ops[op.ID]
	if !ok {
		return ErrNotFound
	}
	op.CreatedAt = existing.CreatedAt
	op.UpdatedAt = r.s.now()
	r.journal(op.ID)
	cp := *op
	r.s.ops[op.ID] = &cp
	return nil
}

func (r memOperations) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerOperation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	op, ok := r.s.ops[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *op
	return &cp, nil
}

func (r memOperations) List(ctx context.Context, filter OperationFilter, page Page) ([]models.LedgerOperation, int64, error) {
	r.s.mu.RLock()
	var out []models.LedgerOperation
	for _, op := range r.s.ops {
		if filter.Status != nil && op.Status != *filter.Status {
			continue
		}
		if filter.Kind != nil && op.Kind != *filter.Kind {
			continue
		}
		if filter.CreditID != nil && (op.CreditID == nil || *op.CreditID != *filter.CreditID) {
			continue
		}
		out = append(out, *op)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return pageOf(out, page), int64(len(out)), nil
}

func (r memOperations) Stale(ctx context.Context, statuses []models.OperationStatus, cutoff time.Time, limit int) ([]models.LedgerOperation, error) {
	wanted := make(map[models.OperationStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	r.s.mu.RLock()
	var out []models.LedgerOperation
	for _, op := range r.s.ops {
		if wanted[op.Status] && op.UpdatedAt.Before(cutoff) {
			out = append(out, *op)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTokens struct {
	s    *MemoryStore
	undo *undoLog
}

func (r memTokens) Create(ctx context.Context, token *models.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.TokenHash == token.TokenHash {
			return ErrDuplicate
		}
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = r.s.now()
	r.journal(token.ID)
	cp := *token
	r.s.tokens[token.ID] = &cp
	return nil
}

func (r memTokens) journal(id uuid.UUID) {
	if r.undo != nil {
		remember(r.undo.tokens, r.s.tokens, id)
	}
}

func (r memTokens) FindActive(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tokens {
		if t.TokenHash == tokenHash && !t.Revoked {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r memTokens) Revoke(ctx context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.tokens {
		if t.TokenHash == tokenHash {
			r.journal(id)
			cp := *t
			cp.Revoked = true
			r.s.tokens[id] = &cp
		}
	}
	return nil
}

func (r memTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.tokens {
		if t.UserID == userID && !t.Revoked {
			r.journal(id)
			cp := *t
			cp.Revoked = true
			r.s.tokens[id] = &cp
		}
	}
	return nil
}
