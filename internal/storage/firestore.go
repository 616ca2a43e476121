package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/terra-clan/progression-engine/internal/models"
)

const settlementMarkers = "settlement_markers"

// FirestoreProfileStore keeps profiles as documents keyed by user ID
type FirestoreProfileStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreProfileStore wraps client. Profiles go to collection.
func NewFirestoreProfileStore(client *firestore.Client, collection string) *FirestoreProfileStore {
	if collection == "" {
		collection = "users"
	}
	return &FirestoreProfileStore{client: client, collection: collection}
}

func (s *FirestoreProfileStore) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(userID)
}

// CreateProfile stores p, failing with ErrAlreadyExists if the user has one
func (s *FirestoreProfileStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	_, err := s.doc(p.UserID).Create(ctx, p)
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetProfile returns nil, nil when the document does not exist
func (s *FirestoreProfileStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	snap, err := s.doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return decodeProfile(snap)
}

// UpdateProfile writes p inside a transaction that checks the stored version
func (s *FirestoreProfileStore) UpdateProfile(ctx context.Context, p *models.Profile, expectedVersion int64) error {
	next := p.Clone()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return s.casProfile(tx, next, expectedVersion)
	})
	if err != nil {
		return err
	}
	p.Version = next.Version
	p.UpdatedAt = next.UpdatedAt
	return nil
}

// ListProfiles returns profiles by experience, highest first
func (s *FirestoreProfileStore) ListProfiles(ctx context.Context, limit, offset int) ([]*models.Profile, error) {
	if limit <= 0 {
		limit = 50
	}

	iter := s.client.Collection(s.collection).
		OrderBy("experience", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var profiles []*models.Profile
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list profiles: %w", err)
		}
		p, err := decodeProfile(snap)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Ping reads at most one document to prove the collection is reachable
func (s *FirestoreProfileStore) Ping(ctx context.Context) error {
	iter := s.client.Collection(s.collection).Limit(1).Documents(ctx)
	defer iter.Stop()

	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

// settlementMarker records that a challenge's profile updates were written
type settlementMarker struct {
	ChallengeID string    `firestore:"challenge_id"`
	AppliedAt   time.Time `firestore:"applied_at"`
	AppliedSettlement
}

// ApplySettlement writes every profile update of a challenge settlement in
// one transaction together with a marker document holding the outcome. A
// second call for the same challenge finds the marker, writes nothing and
// returns the stored outcome.
func (s *FirestoreProfileStore) ApplySettlement(ctx context.Context, challengeID string, applied AppliedSettlement, updates []ProfileUpdate) (*AppliedSettlement, error) {
	marker := s.client.Collection(settlementMarkers).Doc(challengeID)

	next := make([]*models.Profile, len(updates))
	var prior *AppliedSettlement

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		prior = nil
		snap, err := tx.Get(marker)
		if err == nil {
			var m settlementMarker
			if err := snap.DataTo(&m); err != nil {
				return fmt.Errorf("failed to decode settlement marker: %w", err)
			}
			prior = &m.AppliedSettlement
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}

		// Firestore requires all reads before writes, so check every version first.
		for i, u := range updates {
			next[i] = u.Profile.Clone()
			if err := s.checkVersion(tx, next[i].UserID, u.ExpectedVersion); err != nil {
				return err
			}
		}
		for i, u := range updates {
			if err := s.writeProfile(tx, next[i], u.ExpectedVersion); err != nil {
				return err
			}
		}
		return tx.Set(marker, settlementMarker{
			ChallengeID:       challengeID,
			AppliedAt:         time.Now().UTC(),
			AppliedSettlement: applied,
		})
	})
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return prior, nil
	}

	for i, u := range updates {
		u.Profile.Version = next[i].Version
		u.Profile.UpdatedAt = next[i].UpdatedAt
	}
	return nil, nil
}

func (s *FirestoreProfileStore) casProfile(tx *firestore.Transaction, p *models.Profile, expectedVersion int64) error {
	if err := s.checkVersion(tx, p.UserID, expectedVersion); err != nil {
		return err
	}
	return s.writeProfile(tx, p, expectedVersion)
}

func (s *FirestoreProfileStore) checkVersion(tx *firestore.Transaction, userID string, expectedVersion int64) error {
	snap, err := tx.Get(s.doc(userID))
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read profile: %w", err)
	}

	current, err := decodeProfile(snap)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("profile %s at version %d: %w", userID, expectedVersion, ErrVersionConflict)
	}
	return nil
}

// writeProfile sets the version from expectedVersion so a retried
// transaction function produces the same document.
func (s *FirestoreProfileStore) writeProfile(tx *firestore.Transaction, p *models.Profile, expectedVersion int64) error {
	p.Version = expectedVersion + 1
	p.UpdatedAt = time.Now().UTC()
	return tx.Set(s.doc(p.UserID), p)
}

func decodeProfile(snap *firestore.DocumentSnapshot) (*models.Profile, error) {
	var p models.Profile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.UserID = snap.Ref.ID
	return &p, nil
}
