package courseware

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ResolveAccess decides whether the learner may play the content item.
// Evaluation order is fixed: existence, admin bypass, free preview,
// entitlement version match, denial. Denials are results, not errors.
func (s *service) ResolveAccess(ctx context.Context, learnerID, contentID uuid.UUID) (AccessDecision, error) {
	notFound := AccessDecision{
		State:     AccessDeniedNotFound,
		LearnerID: learnerID,
		ContentID: contentID,
	}

	item, err := s.repository.GetContentItem(ctx, contentID)
	if err != nil {
		if errors.Is(err, ErrContentNotFound) {
			return notFound, nil
		}
		return AccessDecision{}, err
	}
	if item.Status != ContentStatusActive {
		return notFound, nil
	}

	return s.resolveItemAccess(ctx, learnerID, item)
}

// resolveItemAccess runs the priority chain for an item already known to
// be active.
func (s *service) resolveItemAccess(ctx context.Context, learnerID uuid.UUID, item *ContentItem) (AccessDecision, error) {
	decision := AccessDecision{
		LearnerID:      learnerID,
		ContentID:      item.ID,
		CourseID:       item.CourseID,
		ContentVersion: item.VersionNumber,
	}

	admin, err := s.identity.IsAdmin(ctx, learnerID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("resolve access: identity check: %w", err)
	}
	if admin {
		decision.State = AccessGrantedOwner
		return decision, nil
	}

	if item.FreePreview {
		decision.State = AccessGrantedFreePreview
		return decision, nil
	}

	ent, err := s.repository.GetEntitlement(ctx, learnerID, item.CourseID)
	if err != nil {
		if errors.Is(err, ErrNoEntitlement) {
			decision.State = AccessDeniedPurchaseRequired
			return decision, nil
		}
		return AccessDecision{}, fmt.Errorf("resolve access: load entitlement: %w", err)
	}

	decision.EntitledVersion = &ent.VersionNumber
	if ent.VersionNumber == item.VersionNumber {
		decision.State = AccessGrantedPurchased
		return decision, nil
	}

	decision.State = AccessDeniedPurchaseRequired
	return decision, nil
}

// PlaybackURL resolves access and, when granted, signs a read URL for the
// item's blob. Denied decisions come back with an empty URL so the caller
// can drive a purchase prompt instead of a player.
func (s *service) PlaybackURL(ctx context.Context, learnerID, contentID uuid.UUID) (*PlaybackGrant, error) {
	decision, err := s.ResolveAccess(ctx, learnerID, contentID)
	if err != nil {
		return nil, err
	}
	if !decision.Granted() {
		return &PlaybackGrant{Decision: decision}, nil
	}

	item, err := s.repository.GetContentItem(ctx, contentID)
	if err != nil {
		return nil, err
	}
	store, err := s.backend(item.StorageBackend)
	if err != nil {
		return nil, err
	}
	url, err := store.SignedReadURL(ctx, item.BlobKey, item.Title)
	if err != nil {
		return nil, &BlobStoreError{Backend: item.StorageBackend, Key: item.BlobKey, Op: "sign", Err: err}
	}

	return &PlaybackGrant{Decision: decision, URL: url}, nil
}
