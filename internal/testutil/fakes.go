// Package testutil holds in-memory stand-ins for the stores, the processor
// and the Kafka producers, plus a Postgres harness for the repositories.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/apperr"
	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/payouts"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/ariefcatur/lightshow-market/internal/sellers"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func Logger() *zap.Logger { return zap.NewNop() }

// ---- sellers ----

type SellerStore struct {
	mu        sync.Mutex
	rows      map[string]sellers.Account
	InsertErr error
	UpdateErr error
}

func NewSellerStore() *SellerStore { return &SellerStore{rows: map[string]sellers.Account{}} }

func (s *SellerStore) Get(_ context.Context, sellerID string) (sellers.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[sellerID]
	if !ok {
		return sellers.Account{}, apperr.New(apperr.CodeNotOnboarded, "", nil)
	}
	return a, nil
}

func (s *SellerStore) GetByExternalID(_ context.Context, extID string) (sellers.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.ExternalAccountID == extID {
			return a, nil
		}
	}
	return sellers.Account{}, apperr.New(apperr.CodeAccountNotFound, "", nil)
}

func (s *SellerStore) Insert(_ context.Context, acc sellers.Account) (sellers.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return sellers.Account{}, s.InsertErr
	}
	if existing, ok := s.rows[acc.SellerID]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	acc.CreatedAt, acc.UpdatedAt = now, now
	s.rows[acc.SellerID] = acc
	return acc, nil
}

func (s *SellerStore) UpdateCapabilities(_ context.Context, extID string, charges, payoutsEnabled bool) (sellers.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return sellers.Account{}, s.UpdateErr
	}
	for id, a := range s.rows {
		if a.ExternalAccountID == extID {
			a.ChargesEnabled, a.PayoutsEnabled = charges, payoutsEnabled
			a.UpdatedAt = time.Now().UTC()
			s.rows[id] = a
			return a, nil
		}
	}
	return sellers.Account{}, apperr.New(apperr.CodeAccountNotFound, "", nil)
}

// Put stores acc as-is.
func (s *SellerStore) Put(acc sellers.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[acc.SellerID] = acc
}

func (s *SellerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// ---- orders ----

type OrderStore struct {
	mu            sync.Mutex
	rows          map[string]orders.Order
	InsertErr     error
	TransitionErr error
	ListErr       error
}

func NewOrderStore() *OrderStore { return &OrderStore{rows: map[string]orders.Order{}} }

func (s *OrderStore) Insert(_ context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	if _, ok := s.rows[o.ID]; ok {
		return apperr.New(apperr.CodeDuplicate, "", nil)
	}
	o.Status = orders.StatusPending
	s.rows[o.ID] = o
	return nil
}

func (s *OrderStore) InsertIfAbsent(_ context.Context, o orders.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return false, s.InsertErr
	}
	if _, ok := s.rows[o.ID]; ok {
		return false, nil
	}
	o.Status = orders.StatusPending
	s.rows[o.ID] = o
	return true, nil
}

func (s *OrderStore) Get(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.rows[id]
	if !ok {
		return orders.Order{}, apperr.New(apperr.CodeOrderNotFound, "", nil)
	}
	return o, nil
}

func (s *OrderStore) GetByReference(_ context.Context, ref string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byRef(ref)
}

func (s *OrderStore) byRef(ref string) (orders.Order, error) {
	for _, o := range s.rows {
		if o.ExternalPaymentReference == ref {
			return o, nil
		}
	}
	return orders.Order{}, apperr.New(apperr.CodeOrderNotFound, "", nil)
}

func (s *OrderStore) Transition(_ context.Context, ref string, to orders.Status, message string) (orders.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TransitionErr != nil {
		return orders.Order{}, false, s.TransitionErr
	}
	o, err := s.byRef(ref)
	if err != nil {
		return orders.Order{}, false, err
	}
	if o.Status != orders.StatusPending {
		return o, false, nil
	}
	o.Status, o.FailureMessage, o.UpdatedAt = to, message, time.Now().UTC()
	s.rows[o.ID] = o
	return o, true, nil
}

func (s *OrderStore) ListStalePending(_ context.Context, before time.Time, limit int) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	var out []orders.Order
	for _, o := range s.rows {
		if o.Status == orders.StatusPending && o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores o as-is.
func (s *OrderStore) Put(o orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[o.ID] = o
}

func (s *OrderStore) All() []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Order, 0, len(s.rows))
	for _, o := range s.rows {
		out = append(out, o)
	}
	return out
}

// ---- payouts ----

type PayoutStore struct {
	mu   sync.Mutex
	rows map[string]payouts.Payout
	Err  error
}

func NewPayoutStore() *PayoutStore { return &PayoutStore{rows: map[string]payouts.Payout{}} }

func (s *PayoutStore) Create(_ context.Context, p payouts.Payout) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	if _, ok := s.rows[p.ID]; ok {
		return false, nil
	}
	now := time.Now().UTC()
	p.Status, p.CreatedAt, p.UpdatedAt = payouts.StatusPending, now, now
	s.rows[p.ID] = p
	return true, nil
}

func (s *PayoutStore) Settle(_ context.Context, p payouts.Payout) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	now := time.Now().UTC()
	cur, ok := s.rows[p.ID]
	if !ok {
		p.CreatedAt, p.UpdatedAt = now, now
		s.rows[p.ID] = p
		return true, nil
	}
	if cur.Status != payouts.StatusPending {
		return false, nil
	}
	cur.Status, cur.FailureReason, cur.UpdatedAt = p.Status, p.FailureReason, now
	s.rows[p.ID] = cur
	return true, nil
}

func (s *PayoutStore) ListBySeller(_ context.Context, sellerID string, limit int) ([]payouts.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []payouts.Payout{}
	for _, p := range s.rows {
		if p.SellerID == sellerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *PayoutStore) Lookup(id string) (payouts.Payout, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	return p, ok
}

// ---- processor ----

// Processor is a scripted processor.Client. Account creation is idempotent per
// seller, matching the idempotency key the real client sends.
type Processor struct {
	mu       sync.Mutex
	accounts map[string]processor.Account // by account id
	bySeller map[string]string
	payments map[string]processor.Payment // by reference

	AccountsCreated int
	LinksCreated    int
	PaymentRequests []processor.PaymentRequest

	CreateAccountErr error
	LinkErr          error
	GetAccountErr    error
	CreatePaymentErr error
	GetPaymentErr    error
}

func NewProcessor() *Processor {
	return &Processor{
		accounts: map[string]processor.Account{},
		bySeller: map[string]string{},
		payments: map[string]processor.Payment{},
	}
}

func (p *Processor) CreateAccount(_ context.Context, sellerID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateAccountErr != nil {
		return "", p.CreateAccountErr
	}
	if id, ok := p.bySeller[sellerID]; ok {
		return id, nil
	}
	p.AccountsCreated++
	id := fmt.Sprintf("acct_%d", p.AccountsCreated)
	p.bySeller[sellerID] = id
	p.accounts[id] = processor.Account{ID: id, Requirements: []string{"external_account"}}
	return id, nil
}

func (p *Processor) CreateOnboardingLink(_ context.Context, accountID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LinkErr != nil {
		return "", p.LinkErr
	}
	p.LinksCreated++
	return fmt.Sprintf("https://connect.example.test/setup/%s/%d", accountID, p.LinksCreated), nil
}

func (p *Processor) GetAccount(_ context.Context, accountID string) (processor.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GetAccountErr != nil {
		return processor.Account{}, p.GetAccountErr
	}
	a, ok := p.accounts[accountID]
	if !ok {
		return processor.Account{}, fmt.Errorf("no such account: %s", accountID)
	}
	return a, nil
}

// SetAccount replaces the processor-side state of an account.
func (p *Processor) SetAccount(a processor.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[a.ID] = a
}

func (p *Processor) CreatePayment(_ context.Context, req processor.PaymentRequest) (processor.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreatePaymentErr != nil {
		return processor.Payment{}, p.CreatePaymentErr
	}
	p.PaymentRequests = append(p.PaymentRequests, req)
	ref := fmt.Sprintf("pi_%d", len(p.PaymentRequests))
	pay := processor.Payment{Reference: ref, ClientSecret: ref + "_secret", Status: processor.PaymentRequiresMethod}
	p.payments[ref] = pay
	return pay, nil
}

func (p *Processor) GetPayment(_ context.Context, ref string) (processor.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.GetPaymentErr != nil {
		return processor.Payment{}, p.GetPaymentErr
	}
	pay, ok := p.payments[ref]
	if !ok {
		return processor.Payment{}, fmt.Errorf("no such payment: %s", ref)
	}
	return pay, nil
}

func (p *Processor) SetPaymentStatus(ref string, status processor.PaymentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay := p.payments[ref]
	pay.Reference, pay.Status = ref, status
	p.payments[ref] = pay
}

// ---- kafka ----

type Message struct {
	Key, Value []byte
	Headers    []kafkago.Header
}

// Publisher records Publish and Send calls. SendErr fails Send.
type Publisher struct {
	mu       sync.Mutex
	Messages []Message
	SendErr  error
}

func (p *Publisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, Message{Key: key, Value: value, Headers: headers})
}

func (p *Publisher) Send(_ context.Context, key, value []byte, headers ...kafkago.Header) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SendErr != nil {
		return p.SendErr
	}
	p.Messages = append(p.Messages, Message{Key: key, Value: value, Headers: headers})
	return nil
}

func (p *Publisher) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.Messages...)
}

// ---- redis ----

type Deduper struct {
	mu   sync.Mutex
	seen map[string]bool
	Err  error
}

func NewDeduper() *Deduper { return &Deduper{seen: map[string]bool{}} }

func (d *Deduper) Seen(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return false, d.Err
	}
	return d.seen[id], nil
}

func (d *Deduper) Mark(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.seen[id] = true
	return nil
}

type StatusCache struct {
	mu   sync.Mutex
	rows map[string]orders.StatusSnapshot
}

func NewStatusCache() *StatusCache { return &StatusCache{rows: map[string]orders.StatusSnapshot{}} }

func (c *StatusCache) SetStatus(_ context.Context, s orders.StatusSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[s.OrderID] = s
	return nil
}

func (c *StatusCache) FillStatus(_ context.Context, s orders.StatusSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rows[s.OrderID]; !ok {
		c.rows[s.OrderID] = s
	}
	return nil
}

func (c *StatusCache) GetStatus(_ context.Context, id string) (orders.StatusSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.rows[id]
	return s, ok, nil
}
