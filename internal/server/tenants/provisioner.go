package tenants

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/docstore"
	"github.com/dmitrijs2005/tenantkeeper/internal/logging"
	"github.com/dmitrijs2005/tenantkeeper/internal/naming"
	"github.com/dmitrijs2005/tenantkeeper/internal/nit"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/auth"
	"github.com/google/uuid"
)

// State is a step of the onboarding state machine.
type State string

const (
	StateReceived           State = "Received"
	StateValidated          State = "Validated"
	StateRegistered         State = "Registered"
	StateProvisioned        State = "Provisioned"
	StateCompleted          State = "Completed"
	StateRejected           State = "Rejected"
	StateProvisioningFailed State = "ProvisioningFailed"
)

// CollectionSpec is a tenant collection and its indexes.
type CollectionSpec struct {
	Name    string
	Indexes []docstore.IndexModel
}

// CompanyCollection mirrors the tenant's own profile.
const CompanyCollection = "company"

// TenantCollections is the fixed layout of every tenant database.
var TenantCollections = []CollectionSpec{
	{Name: CompanyCollection, Indexes: []docstore.IndexModel{
		{Keys: []string{"tax_id_digits"}, Unique: true},
	}},
	{Name: "settings"},
	{Name: "users", Indexes: []docstore.IndexModel{
		{Keys: []string{"email"}},
	}},
	{Name: "patients", Indexes: []docstore.IndexModel{
		{Keys: []string{"document", "type"}},
	}},
	{Name: "services", Indexes: []docstore.IndexModel{
		{Keys: []string{"code"}, Unique: true, Sparse: true},
	}},
	{Name: "appointments", Indexes: []docstore.IndexModel{
		{Keys: []string{"date", "professional_id"}},
	}},
}

// CollectionNames lists TenantCollections in order.
func CollectionNames() []string {
	out := make([]string, len(TenantCollections))
	for i, c := range TenantCollections {
		out[i] = c.Name
	}
	return out
}

// Observer is told how each onboarding ended. It may be nil.
type Observer interface {
	OnboardingFinished(final State, elapsed time.Duration)
}

// OwnerBinder records the tenant database a user works in. Validators that
// read the binding from the user record need it after onboarding.
type OwnerBinder interface {
	BindTenant(ctx context.Context, userID, tenantDB string) error
}

// ProvisionerConfig tunes tenant database naming. Owners may be nil when
// the binding travels in the credential instead.
type ProvisionerConfig struct {
	TenantPrefix string
	MaxDBBytes   int
	Owners       OwnerBinder
}

// Result is a completed onboarding.
type Result struct {
	Entry       *Entry
	Collections []string
}

// Provisioner runs onboarding: validate the profile, register it, create
// the tenant database and mirror the profile into it, strictly in that
// order.
type Provisioner struct {
	registry *Registry
	store    docstore.Store
	cfg      ProvisionerConfig
	logger   logging.Logger
	observer Observer
	now      func() time.Time
}

func NewProvisioner(reg *Registry, store docstore.Store, cfg ProvisionerConfig, l logging.Logger, o Observer) *Provisioner {
	if l == nil {
		l = logging.Nop{}
	}
	if cfg.MaxDBBytes <= 0 {
		cfg.MaxDBBytes = naming.DefaultMaxBytes
	}
	return &Provisioner{
		registry: reg,
		store:    store,
		cfg:      cfg,
		logger:   l.With("module", "provisioner"),
		observer: o,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type run struct {
	p     *Provisioner
	ctx   context.Context
	state State
	start time.Time
	log   logging.Logger
}

func (r *run) to(s State, args ...any) {
	r.state = s
	r.log.Info(r.ctx, "onboarding state", append([]any{"state", string(s)}, args...)...)
}

func (r *run) fail(s State, err error) error {
	r.state = s
	r.log.Warn(r.ctx, "onboarding state", "state", string(s), "kind", common.KindOf(err).String(), "error", err)
	r.finish()
	return err
}

func (r *run) finish() {
	if r.p.observer != nil {
		r.p.observer.OnboardingFinished(r.state, time.Since(r.start))
	}
}

// Onboard provisions the tenant described by profile for principal.
// Submitting the same tax identifier again updates the existing tenant.
func (p *Provisioner) Onboard(ctx context.Context, principal *auth.Principal, profile CompanyProfile) (*Result, error) {
	r := &run{p: p, ctx: ctx, start: time.Now(), log: p.logger}
	r.to(StateReceived)

	if principal == nil || principal.ID == "" {
		return nil, r.fail(StateRejected, common.New(common.KindForbidden, "onboarding requires an authenticated user"))
	}

	profile = profile.Normalize()
	if err := profile.CheckRequired(); err != nil {
		return nil, r.fail(StateRejected, err)
	}
	id, err := nit.Validate(profile.NIT, profile.CheckDigit)
	if err != nil {
		return nil, r.fail(StateRejected, err)
	}
	slug := naming.Slug(profile.Name)
	if slug == "" {
		return nil, r.fail(StateRejected, common.New(common.KindValidation, "name does not produce a usable identifier"))
	}
	tenantDB := naming.TenantDatabase(p.cfg.TenantPrefix, principal.ID, slug, p.cfg.MaxDBBytes)
	if !docstore.ValidName(tenantDB) {
		return nil, r.fail(StateRejected, common.Newf(common.KindValidation, "derived tenant database %q is not a valid name", tenantDB))
	}

	r.log = r.log.With("tax_id", id.Digits, "tenant_db", tenantDB)
	r.to(StateValidated)

	now := p.now()
	entry, err := p.registry.Upsert(ctx, Entry{
		TaxIDDigits: id.Digits,
		NIT:         profile.NIT,
		Name:        profile.Name,
		CheckDigit:  id.CheckDigit,
		Email:       profile.Email,
		Phone:       profile.Phone,
		Address:     profile.Address,
		City:        profile.City,
		Department:  profile.Department,
		Country:     profile.Country,
		TenantDB:    tenantDB,
		Slug:        slug,
		Status:      StatusActive,
		OwnerID:     principal.ID,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, r.fail(StateProvisioningFailed, err)
	}
	r.to(StateRegistered, "id", entry.ID)

	if err := p.provision(ctx, entry.TenantDB); err != nil {
		return nil, r.fail(StateProvisioningFailed, err)
	}
	if err := p.mirror(ctx, entry, now); err != nil {
		return nil, r.fail(StateProvisioningFailed, err)
	}
	if p.cfg.Owners != nil {
		if err := p.cfg.Owners.BindTenant(ctx, principal.ID, entry.TenantDB); err != nil {
			return nil, r.fail(StateProvisioningFailed, common.Wrap(common.KindProvisioningFailed, "binding the owner to the tenant failed", err))
		}
	}
	r.to(StateProvisioned)

	r.to(StateCompleted)
	r.finish()
	return &Result{Entry: entry, Collections: CollectionNames()}, nil
}

// provision creates the tenant collections and indexes when absent.
func (p *Provisioner) provision(ctx context.Context, db string) error {
	for _, c := range TenantCollections {
		if err := p.store.CreateCollection(ctx, db, c.Name); err != nil {
			return storageError("create collection "+c.Name, err)
		}
		for _, idx := range c.Indexes {
			if err := p.store.CreateIndex(ctx, db, c.Name, idx); err != nil {
				return storageError("create index on "+c.Name, err)
			}
		}
	}
	return nil
}

// mirror upserts the registry entry's profile into the tenant's company
// collection, keyed on the tax identifier like the registry itself.
func (p *Provisioner) mirror(ctx context.Context, e *Entry, now time.Time) error {
	upd := docstore.Update{
		Set: map[string]any{
			"tenant_id":   e.ID,
			"nit":         e.NIT,
			"name":        e.Name,
			"check_digit": e.CheckDigit,
			"email":       e.Email,
			"phone":       e.Phone,
			"address":     e.Address,
			"city":        e.City,
			"department":  e.Department,
			"country":     e.Country,
			"updated_at":  now,
		},
		SetOnInsert: map[string]any{
			docstore.IDField: uuid.NewString(),
			"created_at":     now,
			"deleted":        false,
		},
	}

	index := docstore.IndexModel{Keys: []string{"tax_id_digits"}, Unique: true}.IndexName(CompanyCollection)
	if _, err := upsertByKey(ctx, p.store, e.TenantDB, CompanyCollection, "tax_id_digits", e.TaxIDDigits, upd, index); err != nil {
		return storageError("mirror company profile", err)
	}
	return nil
}
