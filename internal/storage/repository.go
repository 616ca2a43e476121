package storage

import (
	"context"
	"errors"
	"time"

	"github.com/terra-clan/progression-engine/internal/models"
)

var (
	// ErrVersionConflict is returned when a compare-and-set write finds a newer version
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists is returned when creating a record whose key is taken
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotFound is returned by writes that target a missing record
	ErrNotFound = errors.New("not found")
	// ErrChallengeNotOpen is returned when an entry write targets a challenge that is no longer open
	ErrChallengeNotOpen = errors.New("challenge is not open")
	// ErrSettlementApplied is returned when an earlier attempt already wrote a
	// settlement's profile updates. The stored outcome is the one that counts.
	ErrSettlementApplied = errors.New("settlement already applied")
)

// ProfileUpdate is a profile write guarded by the version it was read at
type ProfileUpdate struct {
	Profile         *models.Profile
	ExpectedVersion int64
}

// ProfileStore persists progression profiles. Reads return nil, nil when
// the profile does not exist.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	// UpdateProfile writes p if the stored version equals expectedVersion and
	// bumps p.Version. Otherwise it returns ErrVersionConflict.
	UpdateProfile(ctx context.Context, p *models.Profile, expectedVersion int64) error
	ListProfiles(ctx context.Context, limit, offset int) ([]*models.Profile, error)
}

// ChallengeStore persists challenges and their entries
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *models.Challenge) error
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	ListChallenges(ctx context.Context, status models.ChallengeStatus, limit, offset int) ([]*models.Challenge, error)
	GetExpiredChallenges(ctx context.Context, now time.Time) ([]*models.Challenge, error)

	AddEntry(ctx context.Context, e *models.ChallengeEntry) error
	UpdateEntryResult(ctx context.Context, challengeID, userID string, value float64, at time.Time) error

	// ClaimChallengeForSettlement moves an open challenge to settling.
	// It returns false when the challenge was not open.
	ClaimChallengeForSettlement(ctx context.Context, id string) (bool, error)
	ReleaseChallengeClaim(ctx context.Context, id string) error
	GetSettlement(ctx context.Context, challengeID string) ([]models.SettlementRecord, error)
}

// SettlementCommitter writes a settlement's outcomes, the affected profiles
// and the settled status as one unit. A stale profile version aborts the
// whole write with ErrVersionConflict.
type SettlementCommitter interface {
	CompleteSettlement(ctx context.Context, challengeID string, settledAt time.Time, records []models.SettlementRecord, updates []ProfileUpdate) error
}

// AppliedSettlement is kept with the profiles once a settlement's updates
// are written, so a retry can finish with the same outcome
type AppliedSettlement struct {
	SettledAt time.Time                 `firestore:"settled_at"`
	Records   []models.SettlementRecord `firestore:"records"`
}

// ClientStore looks up API clients
type ClientStore interface {
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error
}

// Repository is the full persistence surface
type Repository interface {
	ProfileStore
	ChallengeStore
	SettlementCommitter
	ClientStore

	Ping(ctx context.Context) error
	Close() error
}
