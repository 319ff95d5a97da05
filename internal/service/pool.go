package service

import (
	"context"
	"fmt"
	"time"

	"numpool/internal/models"
	"numpool/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PoolService owns the number inventory. Claiming is a single conditional
// find-and-modify in Mongo, so two concurrent claims can never return the same
// number.
type PoolService struct {
	phoneRepo repository.PhoneRepository
	carrier   *CarrierClient
	metrics   *MetricsCollector
	logger    *logrus.Logger

	leaseDuration time.Duration
}

func NewPoolService(
	phoneRepo repository.PhoneRepository,
	carrier *CarrierClient,
	metrics *MetricsCollector,
	logger *logrus.Logger,
	leaseDuration time.Duration,
) *PoolService {
	return &PoolService{
		phoneRepo:     phoneRepo,
		carrier:       carrier,
		metrics:       metrics,
		logger:        logger,
		leaseDuration: leaseDuration,
	}
}

// Claim atomically takes the soonest-expiring available number for the pair
// and binds it to the user. Returns ErrNoNumbersAvailable when the pool has
// nothing eligible.
func (s *PoolService) Claim(ctx context.Context, serviceID, countryID, userID primitive.ObjectID) (*models.PhoneNumber, error) {
	now := time.Now()

	phone, err := s.phoneRepo.ClaimAvailable(ctx, serviceID, countryID, now)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if phone == nil {
		s.metrics.IncrementClaimMisses(serviceID.Hex(), countryID.Hex())
		return nil, models.ErrNoNumbersAvailable
	}

	bound, err := s.phoneRepo.Assign(ctx, phone.ID, userID, now)
	if err != nil {
		s.release(phone.ID)
		return nil, fmt.Errorf("assign: %w", err)
	}
	if !bound {
		// Another user already holds the binding. The claim itself succeeded,
		// so hand the number back instead of leaving it stuck.
		s.release(phone.ID)
		return nil, models.ErrConflict
	}

	phone.IsUsed = true
	phone.CurrentUser = &userID
	return phone, nil
}

// Release returns a claimed number to the pool. Idempotent; releasing an
// already-free number reports false without error.
func (s *PoolService) Release(ctx context.Context, phoneID primitive.ObjectID) (bool, error) {
	released, err := s.phoneRepo.Release(ctx, phoneID)
	if err != nil {
		return false, fmt.Errorf("release: %w", err)
	}
	return released, nil
}

// ImportNumber acquires a fresh number from the carrier and registers it in
// the pool with a full lease window.
func (s *PoolService) ImportNumber(ctx context.Context, serviceID, countryID primitive.ObjectID, dialCode string) (*models.PhoneNumber, error) {
	lease, err := s.carrier.AcquireNumber(ctx, dialCode, "")
	if err != nil {
		return nil, models.ErrCarrierUnavailable
	}

	phone := &models.PhoneNumber{
		Number:         lease.Number,
		CountryID:      countryID,
		ServiceID:      serviceID,
		Provider:       "jisu366",
		CarrierLeaseID: lease.LeaseID,
		Status:         models.PhoneStatusActive,
		ExpirationTime: time.Now().Add(s.leaseDuration),
		SMSReceived:    []models.SMSMessage{},
	}

	if err := s.phoneRepo.Create(ctx, phone); err != nil {
		// Registration failed, return the lease so the carrier does not keep
		// billing for a number we cannot track.
		if relErr := s.carrier.ReleaseLease(context.Background(), lease.LeaseID); relErr != nil {
			s.logger.Errorf("Failed to return orphan carrier lease %s: %v", lease.LeaseID, relErr)
		}
		return nil, fmt.Errorf("register number: %w", err)
	}

	s.logger.Infof("Imported number %s (lease %s) into pool", phone.Number, lease.LeaseID)
	return phone, nil
}

// RecordMessage appends an inbound message to the number's history. Messages
// are accepted even after the lease ended.
func (s *PoolService) RecordMessage(ctx context.Context, phoneID primitive.ObjectID, msg models.SMSMessage) error {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}

	found, err := s.phoneRepo.PushMessage(ctx, phoneID, msg)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if !found {
		return models.ErrValidation
	}
	return nil
}

// ExtendLease pushes the expiration forward by the configured lease window.
func (s *PoolService) ExtendLease(ctx context.Context, phoneID primitive.ObjectID) (time.Time, error) {
	until := time.Now().Add(s.leaseDuration)
	found, err := s.phoneRepo.ExtendExpiration(ctx, phoneID, until)
	if err != nil {
		return time.Time{}, fmt.Errorf("extend lease: %w", err)
	}
	if !found {
		return time.Time{}, models.ErrValidation
	}
	return until, nil
}

// ExpiredLeases lists claimed numbers whose lease has lapsed, without
// touching them. The sweeper fails the riding orders while the numbers are
// still held, then hands the batch to ReleaseExpired.
func (s *PoolService) ExpiredLeases(ctx context.Context, now time.Time) ([]*models.PhoneNumber, error) {
	expired, err := s.phoneRepo.FindExpiredLeases(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find expired leases: %w", err)
	}
	return expired, nil
}

// ReleaseExpired returns lapsed numbers to the pool and hands their carrier
// leases back. A store release that already happened elsewhere reports false
// and is skipped from the count; the carrier lease is returned either way,
// since the lease window itself has ended. Errors are logged and skipped; the
// next sweep picks the stragglers up again.
func (s *PoolService) ReleaseExpired(ctx context.Context, expired []*models.PhoneNumber) []primitive.ObjectID {
	var released []primitive.ObjectID
	for _, phone := range expired {
		ok, err := s.phoneRepo.Release(ctx, phone.ID)
		if err != nil {
			s.logger.Errorf("Failed to release expired number %s: %v", phone.Number, err)
			continue
		}
		if ok {
			released = append(released, phone.ID)
		}

		if phone.CarrierLeaseID != "" {
			if err := s.carrier.ReleaseLease(ctx, phone.CarrierLeaseID); err != nil {
				s.logger.Warnf("Carrier release for lease %s failed: %v", phone.CarrierLeaseID, err)
			}
		}
	}

	if len(released) > 0 {
		s.metrics.IncrementSweeperReleased(len(released))
		s.logger.Infof("Released %d expired leases", len(released))
	}

	return released
}

// Available reports the claimable count for a pair and refreshes the gauge.
func (s *PoolService) Available(ctx context.Context, serviceID, countryID primitive.ObjectID) (int64, error) {
	count, err := s.phoneRepo.CountAvailable(ctx, serviceID, countryID, time.Now())
	if err != nil {
		return 0, fmt.Errorf("count available: %w", err)
	}

	s.metrics.SetPoolAvailable(serviceID.Hex(), countryID.Hex(), float64(count))
	return count, nil
}

func (s *PoolService) SetStatus(ctx context.Context, phoneID primitive.ObjectID, status models.PhoneStatus) error {
	switch status {
	case models.PhoneStatusActive, models.PhoneStatusInactive, models.PhoneStatusBanned:
	default:
		return fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}

	found, err := s.phoneRepo.UpdateStatus(ctx, phoneID, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if !found {
		return models.ErrValidation
	}
	return nil
}

func (s *PoolService) FindByNumber(ctx context.Context, number string) (*models.PhoneNumber, error) {
	phone, err := s.phoneRepo.FindByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("find number: %w", err)
	}
	return phone, nil
}

// release is the best-effort rollback used when a claim cannot be completed.
// Runs on a background context so a cancelled request cannot leak the number.
func (s *PoolService) release(phoneID primitive.ObjectID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.phoneRepo.Release(ctx, phoneID); err != nil {
		s.logger.Errorf("Failed to roll back claim for %s: %v", phoneID.Hex(), err)
	}
}
