package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leadership-program/nomination-api/internal/models"
	appErrors "github.com/leadership-program/nomination-api/pkg/errors"
	"github.com/leadership-program/nomination-api/pkg/lock"
)

// Transition names used for metrics and error details.
const (
	transitionApprove    = "approve"
	transitionReject     = "reject"
	transitionRegister   = "register"
	transitionDecide     = "decide_registration"
	transitionAttendance = "record_attendance"
	transitionDiploma    = "send_diploma"
)

const (
	statsCacheKey     = "nominations:stats"
	statsCachePattern = "nominations:stats*"
	lockWait          = 5 * time.Second
)

type nominationReader interface {
	GetByID(ctx context.Context, id string) (*models.Nomination, error)
}

// stateError reports that n cannot take transition and carries both status columns.
func stateError(base *appErrors.Error, n *models.Nomination, transition, message string) error {
	return appErrors.WithDetails(base, message, map[string]interface{}{
		"transition":         transition,
		"status":             n.Status(),
		"review_status":      n.ReviewStatus,
		"participant_status": n.ParticipantStatus,
	})
}

func canApprove(n *models.Nomination) error {
	switch n.ReviewStatus {
	case models.ReviewPending:
		return nil
	case models.ReviewApproved:
		return stateError(appErrors.ErrAlreadyApproved, n, transitionApprove, "nomination already approved")
	default:
		return stateError(appErrors.ErrInvalidStateTransition, n, transitionApprove, "rejected nomination cannot be approved")
	}
}

func canRegister(n *models.Nomination) error {
	if n.RegistrationCompleted {
		return stateError(appErrors.ErrAlreadyRegistered, n, transitionRegister, "registration already completed")
	}
	if n.ReviewStatus == models.ReviewRejected {
		return stateError(appErrors.ErrInvalidStateTransition, n, transitionRegister, "nomination was rejected")
	}
	return nil
}

func canDecide(n *models.Nomination) error {
	if !n.RegistrationCompleted {
		return stateError(appErrors.ErrNoRegistration, n, transitionDecide, "nominee has not registered yet")
	}
	if n.ReviewStatus == models.ReviewRejected {
		return stateError(appErrors.ErrInvalidStateTransition, n, transitionDecide, "nomination was rejected")
	}
	if !awaitingDecision(n) {
		return stateError(appErrors.ErrInvalidStateTransition, n, transitionDecide, "registration already decided")
	}
	return nil
}

// awaitingDecision reports whether the participant gate is still open. A nominee who reached the
// attendance threshold before registering is completed but has no participant account yet.
func awaitingDecision(n *models.Nomination) bool {
	switch n.ParticipantStatus {
	case models.ParticipantPendingApproval:
		return true
	case models.ParticipantCompleted:
		return n.ParticipantID == nil
	default:
		return false
	}
}

func isRejected(n *models.Nomination) bool {
	return n.ReviewStatus == models.ReviewRejected || n.ParticipantStatus == models.ParticipantRejected
}

// loadNomination maps a missing row to NotFound.
func loadNomination(ctx context.Context, store nominationReader, id string) (*models.Nomination, error) {
	n, err := store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "nomination not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load nomination")
	}
	return n, nil
}

// lostRace re-reads a nomination after a compare-and-swap update matched no row and explains why.
func lostRace(ctx context.Context, store nominationReader, id, transition string, guard func(*models.Nomination) error) error {
	current, err := loadNomination(ctx, store, id)
	if err != nil {
		return err
	}
	if err := guard(current); err != nil {
		return err
	}
	return stateError(appErrors.ErrInvalidStateTransition, current, transition, "nomination changed concurrently, retry")
}

// withNominationLock runs fn while holding the per-nomination lock.
func withNominationLock(ctx context.Context, locker lock.Locker, id string, fn func() error) error {
	if locker == nil {
		return fn()
	}
	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	release, err := locker.Acquire(lockCtx, "nomination:"+id)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return appErrors.Clone(appErrors.ErrLockNotAcquired, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire nomination lock")
	}
	defer func() {
		_ = release(context.WithoutCancel(ctx))
	}()
	return fn()
}

// invalidateStats drops every cached stats snapshot.
func invalidateStats(ctx context.Context, cache *CacheService) {
	_ = cache.Invalidate(ctx, statsCachePattern)
}

func registrationLink(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id
}

func belowThreshold(n *models.Nomination, threshold float64) error {
	if n.AttendanceHours >= threshold {
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrPreconditionFailed,
		fmt.Sprintf("attendance of %g hours is below the required %g hours", n.AttendanceHours, threshold),
		map[string]interface{}{
			"attendance_hours": n.AttendanceHours,
			"required_hours":   threshold,
		})
}
