package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/terra-clan/progression-engine/internal/models"
)

// MemoryRepository is an in-process Repository for local runs and tests.
// It honours the same version and status guards as the Postgres store.
type MemoryRepository struct {
	mu          sync.RWMutex
	profiles    map[string]*models.Profile
	challenges  map[string]*models.Challenge
	settlements map[string][]models.SettlementRecord
	applied     map[string]AppliedSettlement
	clients     map[string]*models.ApiClient
}

// NewMemoryRepository creates an empty repository seeded with clients
func NewMemoryRepository(clients ...*models.ApiClient) *MemoryRepository {
	r := &MemoryRepository{
		profiles:    make(map[string]*models.Profile),
		challenges:  make(map[string]*models.Challenge),
		settlements: make(map[string][]models.SettlementRecord),
		applied:     make(map[string]AppliedSettlement),
		clients:     make(map[string]*models.ApiClient),
	}
	for _, c := range clients {
		cp := *c
		r.clients[c.ApiKey] = &cp
	}
	return r
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (r *MemoryRepository) Close() error { return nil }

// --- Profiles ---

func (r *MemoryRepository) CreateProfile(ctx context.Context, p *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[p.UserID]; ok {
		return ErrAlreadyExists
	}
	r.profiles[p.UserID] = p.Clone()
	return nil
}

func (r *MemoryRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) UpdateProfile(ctx context.Context, p *models.Profile, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkVersion(p.UserID, expectedVersion); err != nil {
		return err
	}
	r.storeProfile(p, expectedVersion)
	return nil
}

func (r *MemoryRepository) ListProfiles(ctx context.Context, limit, offset int) ([]*models.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	all := make([]*models.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		all = append(all, p.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Experience != all[j].Experience {
			return all[i].Experience > all[j].Experience
		}
		return all[i].UserID < all[j].UserID
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepository) checkVersion(userID string, expectedVersion int64) error {
	current, ok := r.profiles[userID]
	if !ok {
		return fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("profile %s at version %d: %w", userID, expectedVersion, ErrVersionConflict)
	}
	return nil
}

func (r *MemoryRepository) storeProfile(p *models.Profile, expectedVersion int64) {
	p.Version = expectedVersion + 1
	p.UpdatedAt = time.Now().UTC()
	r.profiles[p.UserID] = p.Clone()
}

// --- Challenges ---

func (r *MemoryRepository) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.challenges[c.ID]; ok {
		return ErrAlreadyExists
	}
	r.challenges[c.ID] = cloneChallenge(c)
	return nil
}

func (r *MemoryRepository) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.challenges[id]
	if !ok {
		return nil, nil
	}
	return cloneChallenge(c), nil
}

func (r *MemoryRepository) ListChallenges(ctx context.Context, status models.ChallengeStatus, limit, offset int) ([]*models.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var out []*models.Challenge
	for _, c := range r.challenges {
		if status == "" || c.Status == status {
			out = append(out, cloneChallenge(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) GetExpiredChallenges(ctx context.Context, now time.Time) ([]*models.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Challenge
	for _, c := range r.challenges {
		if !c.Status.IsTerminal() && c.IsExpired(now) {
			out = append(out, cloneChallenge(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndsAt.Before(out[j].EndsAt) })
	return out, nil
}

func (r *MemoryRepository) AddEntry(ctx context.Context, e *models.ChallengeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[e.ChallengeID]
	if !ok || c.Status != models.ChallengeOpen {
		return ErrChallengeNotOpen
	}
	if c.Entry(e.UserID) != nil {
		return ErrAlreadyExists
	}
	c.Entries = append(c.Entries, *e)
	return nil
}

func (r *MemoryRepository) UpdateEntryResult(ctx context.Context, challengeID, userID string, value float64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[challengeID]
	if !ok || c.Status != models.ChallengeOpen {
		return ErrNotFound
	}
	e := c.Entry(userID)
	if e == nil {
		return ErrNotFound
	}
	e.AchievedValue = value
	e.SubmittedAt = &at
	return nil
}

func (r *MemoryRepository) ClaimChallengeForSettlement(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[id]
	if !ok || c.Status != models.ChallengeOpen {
		return false, nil
	}
	c.Status = models.ChallengeSettling
	return true, nil
}

func (r *MemoryRepository) ReleaseChallengeClaim(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.challenges[id]; ok && c.Status == models.ChallengeSettling {
		c.Status = models.ChallengeOpen
	}
	return nil
}

func (r *MemoryRepository) GetSettlement(ctx context.Context, challengeID string) ([]models.SettlementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := r.settlements[challengeID]
	out := make([]models.SettlementRecord, len(records))
	copy(out, records)
	return out, nil
}

// CompleteSettlement checks every profile version before writing anything
func (r *MemoryRepository) CompleteSettlement(ctx context.Context, challengeID string, settledAt time.Time, records []models.SettlementRecord, updates []ProfileUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[challengeID]
	if !ok || c.Status != models.ChallengeSettling {
		return ErrChallengeNotOpen
	}
	if err := r.applyUpdates(updates); err != nil {
		return err
	}
	r.finish(c, settledAt, records)
	return nil
}

// ApplySettlement writes the profile half of a split settlement once per
// challenge. A repeat returns the first outcome and writes nothing.
func (r *MemoryRepository) ApplySettlement(ctx context.Context, challengeID string, applied AppliedSettlement, updates []ProfileUpdate) (*AppliedSettlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, ok := r.applied[challengeID]; ok {
		out := AppliedSettlement{SettledAt: prior.SettledAt, Records: append([]models.SettlementRecord(nil), prior.Records...)}
		return &out, nil
	}
	if err := r.applyUpdates(updates); err != nil {
		return nil, err
	}
	r.applied[challengeID] = AppliedSettlement{
		SettledAt: applied.SettledAt,
		Records:   append([]models.SettlementRecord(nil), applied.Records...),
	}
	return nil, nil
}

// FinishSettlement stores outcomes and marks a settling challenge settled
func (r *MemoryRepository) FinishSettlement(ctx context.Context, challengeID string, settledAt time.Time, records []models.SettlementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.challenges[challengeID]
	if !ok || c.Status != models.ChallengeSettling {
		return ErrChallengeNotOpen
	}
	r.finish(c, settledAt, records)
	return nil
}

func (r *MemoryRepository) applyUpdates(updates []ProfileUpdate) error {
	for _, u := range updates {
		if err := r.checkVersion(u.Profile.UserID, u.ExpectedVersion); err != nil {
			return err
		}
	}
	for _, u := range updates {
		r.storeProfile(u.Profile, u.ExpectedVersion)
	}
	return nil
}

func (r *MemoryRepository) finish(c *models.Challenge, settledAt time.Time, records []models.SettlementRecord) {
	stored := make([]models.SettlementRecord, len(records))
	for i, rec := range records {
		rec.ChallengeID = c.ID
		rec.SettledAt = settledAt
		stored[i] = rec
	}
	r.settlements[c.ID] = stored
	c.Status = models.ChallengeSettled
	c.SettledAt = &settledAt
}

// --- API Clients ---

func (r *MemoryRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[apiKey]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[apiKey]; ok {
		now := time.Now().UTC()
		c.LastUsedAt = &now
	}
	return nil
}

func cloneChallenge(c *models.Challenge) *models.Challenge {
	cp := *c
	cp.Entries = make([]models.ChallengeEntry, len(c.Entries))
	copy(cp.Entries, c.Entries)
	if c.SettledAt != nil {
		t := *c.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}
