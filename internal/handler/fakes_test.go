package handler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/coursekit/coursekit-backend/internal/domain"
	"github.com/coursekit/coursekit-backend/internal/provider"
)

// In-memory fakes backing the handler tests. Each fake guards its state
// with a mutex so tests can dispatch concurrently.

type fakeResources struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*domain.ContentResource
	creat int
}

func newFakeResources() *fakeResources {
	return &fakeResources{rows: make(map[uuid.UUID]*domain.ContentResource)}
}

func (f *fakeResources) clone(r *domain.ContentResource) *domain.ContentResource {
	cp := *r
	cp.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		cp.Fields[k] = v
	}
	return &cp
}

func (f *fakeResources) GetByID(_ context.Context, id uuid.UUID) (*domain.ContentResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f.clone(r), nil
}

func (f *fakeResources) FindByFieldValue(_ context.Context, rtype domain.ResourceType, key, value string) (*domain.ContentResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Type == rtype && r.Field(key) == value {
			return f.clone(r), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeResources) Create(_ context.Context, res *domain.ContentResource) (*domain.ContentResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[res.ID]; ok {
		return nil, domain.ErrAlreadyExists
	}
	if res.Fields == nil {
		res.Fields = map[string]any{}
	}
	if res.State == "" {
		res.State = domain.StateCreated
	}
	f.rows[res.ID] = f.clone(res)
	f.creat++
	return f.clone(res), nil
}

func (f *fakeResources) Update(_ context.Context, id uuid.UUID, mutate func(*domain.ContentResource) error) (*domain.ContentResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := f.clone(r)
	if err := mutate(cp); err != nil {
		return nil, err
	}
	f.rows[id] = cp
	return f.clone(cp), nil
}

func (f *fakeResources) TransitionState(ctx context.Context, id uuid.UUID, target domain.ProcessingState) (*domain.ContentResource, error) {
	return f.Update(ctx, id, func(r *domain.ContentResource) error {
		next, err := r.State.Transition(target)
		if err != nil {
			return err
		}
		r.State = next
		return nil
	})
}

func (f *fakeResources) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creat
}

type progressKey struct{ resource, user uuid.UUID }

type fakeProgress struct {
	mu   sync.Mutex
	rows map[progressKey]*domain.ResourceProgress
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{rows: make(map[progressKey]*domain.ResourceProgress)}
}

func (f *fakeProgress) Advance(_ context.Context, resourceID, userID uuid.UUID, target domain.ProgressState) (*domain.ResourceProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := progressKey{resourceID, userID}
	p, ok := f.rows[k]
	if !ok {
		p = &domain.ResourceProgress{ResourceID: resourceID, UserID: userID, State: domain.ProgressNotStarted}
		f.rows[k] = p
	}
	p.Advance(target, timeNow())
	cp := *p
	return &cp, nil
}

type fakePurchases struct {
	mu       sync.Mutex
	byCharge map[string]*domain.Purchase
	refunded map[uuid.UUID]int
}

func newFakePurchases() *fakePurchases {
	return &fakePurchases{
		byCharge: make(map[string]*domain.Purchase),
		refunded: make(map[uuid.UUID]int),
	}
}

func (f *fakePurchases) GetByChargeIdentifier(_ context.Context, identifier string) (*domain.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byCharge[identifier]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePurchases) MarkRefunded(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded[id]++
	for _, p := range f.byCharge {
		if p.ID == id && p.Status != domain.PurchaseStatusRefunded {
			p.Status = domain.PurchaseStatusRefunded
			return true, nil
		}
	}
	return false, nil
}

type fakeCharges struct {
	mu      sync.Mutex
	byIdent map[string]*domain.MerchantCharge
}

func newFakeCharges() *fakeCharges {
	return &fakeCharges{byIdent: make(map[string]*domain.MerchantCharge)}
}

func (f *fakeCharges) add(identifier string) *domain.MerchantCharge {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &domain.MerchantCharge{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		MerchantAccountID: uuid.New(),
		Identifier:        identifier,
		Status:            domain.MerchantStatusActive,
	}
	f.byIdent[identifier] = c
	return c
}

func (f *fakeCharges) GetChargeByIdentifier(_ context.Context, identifier string) (*domain.MerchantCharge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byIdent[identifier]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type fakeOrgs struct {
	mu       sync.Mutex
	personal map[uuid.UUID]*domain.Organization
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{personal: make(map[uuid.UUID]*domain.Organization)}
}

func (f *fakeOrgs) EnsurePersonal(_ context.Context, ownerID uuid.UUID, name string) (*domain.Organization, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if org, ok := f.personal[ownerID]; ok {
		cp := *org
		return &cp, false, nil
	}
	org := &domain.Organization{ID: uuid.New(), Name: name, OwnerID: ownerID, Personal: true}
	f.personal[ownerID] = org
	cp := *org
	return &cp, true, nil
}

type fakeMarkers struct {
	mu     sync.Mutex
	claims map[string]bool
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{claims: make(map[string]bool)}
}

func (f *fakeMarkers) Claim(_ context.Context, handler, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := handler + "/" + key
	if f.claims[k] {
		return false, nil
	}
	f.claims[k] = true
	return true, nil
}

func (f *fakeMarkers) Release(_ context.Context, handler, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, handler+"/"+key)
	return nil
}

type fakeInflight struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeInflight() *fakeInflight {
	return &fakeInflight{held: make(map[string]bool)}
}

func (f *fakeInflight) TryAcquire(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeInflight) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	return nil
}

type fakeTranscription struct {
	mu          sync.Mutex
	transcripts int
	splitCalls  []string
	err         error
}

func (f *fakeTranscription) RequestTranscript(_ context.Context, resourceID uuid.UUID, mediaURL, callbackURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.transcripts++
	return fmt.Sprintf("job-%d", f.transcripts), nil
}

func (f *fakeTranscription) RequestSplitPoints(_ context.Context, resourceID string, transcript string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.splitCalls = append(f.splitCalls, resourceID)
	return fmt.Sprintf("split-job-%d", len(f.splitCalls)), nil
}

func (f *fakeTranscription) splitCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.splitCalls)
}

type fakeEmailList struct {
	mu      sync.Mutex
	upserts []string
	sends   []string
	sendErr error
}

func (f *fakeEmailList) UpsertSubscriber(_ context.Context, sub domain.Subscriber) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, sub.Email)
	return "sub-1", nil
}

func (f *fakeEmailList) SendBroadcast(_ context.Context, toUserID uuid.UUID, email, templateID string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sends = append(f.sends, email)
	return nil
}

func (f *fakeEmailList) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type fakeChat struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeChat) Complete(_ context.Context, messages []provider.Message, workflowSelector string) (provider.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return provider.Completion{}, f.err
	}
	f.calls++
	return provider.Completion{Text: "a summary", Model: "test-model"}, nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMerchant struct {
	mu      sync.Mutex
	refunds []string
	err     error
}

func (f *fakeMerchant) ProcessRefund(_ context.Context, chargeID string) (provider.RefundResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return provider.RefundResult{}, f.err
	}
	f.refunds = append(f.refunds, chargeID)
	return provider.RefundResult{RefundID: "re-1"}, nil
}

func (f *fakeMerchant) refundCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refunds)
}

type fakeMessaging struct {
	mu      sync.Mutex
	notices []string
}

func (f *fakeMessaging) Notify(_ context.Context, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	return nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeEmitter) Emit(_ context.Context, evt domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeEmitter) emitted() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Event(nil), f.events...)
}
