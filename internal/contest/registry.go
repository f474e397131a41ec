package contest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"runstake/internal/storage"
)

var weekdayNames = map[string]bool{
	"monday":    true,
	"tuesday":   true,
	"wednesday": true,
	"thursday":  true,
	"friday":    true,
	"saturday":  true,
	"sunday":    true,
}

// Registry owns the contest collection. All contest mutations go through it,
// serialized per contest id so the join and verification invariants hold
// under concurrent requests.
type Registry struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewRegistry creates a registry over the storage layer
func NewRegistry() *Registry {
	return &Registry{locks: make(map[int64]*sync.Mutex)}
}

// contestLock returns the mutex guarding one contest's mutable state
func (r *Registry) contestLock(contestID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[contestID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[contestID] = lock
	}
	return lock
}

// ValidateSchedule checks a schedule at construction time and normalizes its
// weekday names to lowercase.
func ValidateSchedule(s *storage.Schedule) error {
	if s.Type != storage.ScheduleDaily && s.Type != storage.ScheduleWeekly {
		return &InvalidScheduleError{Reason: fmt.Sprintf("unknown schedule type %q", s.Type)}
	}
	if s.DistanceKm <= 0 {
		return &InvalidScheduleError{Reason: "distance must be greater than zero"}
	}
	if s.Type == storage.ScheduleWeekly {
		if len(s.Days) == 0 {
			return &InvalidScheduleError{Reason: "weekly schedule must include at least one day"}
		}
		for i, day := range s.Days {
			normalized := strings.ToLower(strings.TrimSpace(day))
			if !weekdayNames[normalized] {
				return &InvalidScheduleError{Reason: fmt.Sprintf("unknown weekday %q", day)}
			}
			s.Days[i] = normalized
		}
	}
	return nil
}

// CreateContest validates the schedule and creates a pending contest with the
// creator enrolled as the sole initial participant. The contest runs for a
// fixed 30-day window starting now.
func (r *Registry) CreateContest(creatorID int64, creatorName, title string, stakeAmount int64, schedule storage.Schedule, now time.Time) (*storage.Contest, error) {
	if err := ValidateSchedule(&schedule); err != nil {
		return nil, err
	}

	linked, err := athleteLinked(creatorID)
	if err != nil {
		return nil, err
	}

	c, err := storage.CreateContest(creatorID, creatorName, title, stakeAmount, schedule, now, now.Add(storage.ContestDuration))
	if err != nil {
		return nil, err
	}
	if linked {
		if err := storage.SetStravaConnected(creatorID); err != nil {
			return nil, err
		}
		return storage.GetContestByID(c.ID)
	}
	return c, nil
}

func athleteLinked(athleteID int64) (bool, error) {
	token, err := storage.GetStravaToken(athleteID)
	if err != nil {
		return false, err
	}
	return token != nil, nil
}

// GetContest retrieves a contest by id
func (r *Registry) GetContest(contestID int64) (*storage.Contest, error) {
	c, err := storage.GetContestByID(contestID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrContestNotFound
	}
	return c, nil
}

// JoinContest appends a new participant with default (unverified) state
func (r *Registry) JoinContest(contestID, athleteID int64, name string) (*storage.Contest, error) {
	lock := r.contestLock(contestID)
	lock.Lock()
	defer lock.Unlock()

	c, err := r.GetContest(contestID)
	if err != nil {
		return nil, err
	}
	if c.HasParticipant(athleteID) {
		return nil, ErrAlreadyJoined
	}

	if err := storage.AddParticipant(contestID, athleteID, name); err != nil {
		return nil, err
	}
	return r.GetContest(contestID)
}

// ContestList partitions contests by the athlete's membership
type ContestList struct {
	Participating []*storage.Contest `json:"participating"`
	Available     []*storage.Contest `json:"available"`
}

// ListContests partitions all contests into those the athlete participates in
// and those still open to them. Pure read.
func (r *Registry) ListContests(athleteID int64) (*ContestList, error) {
	contests, err := storage.ListContests()
	if err != nil {
		return nil, err
	}

	list := &ContestList{
		Participating: []*storage.Contest{},
		Available:     []*storage.Contest{},
	}
	for _, c := range contests {
		if c.HasParticipant(athleteID) {
			list.Participating = append(list.Participating, c)
		} else {
			list.Available = append(list.Available, c)
		}
	}
	return list, nil
}

// GetParticipant retrieves one athlete's record in a contest
func (r *Registry) GetParticipant(contestID, athleteID int64) (*storage.Participant, error) {
	c, err := storage.GetContestByID(contestID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrContestNotFound
	}

	p, err := storage.GetParticipant(contestID, athleteID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

// VerifyRun runs the daily verification policy for one participant and, on
// success, persists the updated counter and verification day. At most one
// verification can succeed per participant per calendar day.
func (r *Registry) VerifyRun(contestID, athleteID int64, activities []Activity, today time.Time) (*storage.Contest, *VerificationResult, error) {
	lock := r.contestLock(contestID)
	lock.Lock()
	defer lock.Unlock()

	c, err := r.GetContest(contestID)
	if err != nil {
		return nil, nil, err
	}

	p, err := storage.GetParticipant(contestID, athleteID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, ErrParticipantNotFound
	}

	result, err := Verify(p, c.Schedule, activities, today)
	if err != nil {
		return nil, nil, err
	}

	if err := storage.RecordVerification(contestID, athleteID, today); err != nil {
		return nil, nil, err
	}

	c, err = r.GetContest(contestID)
	if err != nil {
		return nil, nil, err
	}
	return c, result, nil
}

// CheckCompletion runs the full-window settlement policy for one participant.
// Pure read; the verdict is not persisted here.
func (r *Registry) CheckCompletion(contestID, athleteID int64, activities []Activity, now time.Time) (CompletionResult, error) {
	c, err := storage.GetContestByID(contestID)
	if err != nil {
		return CompletionResult{}, err
	}
	if c == nil {
		return CompletionResult{}, ErrContestNotFound
	}

	p, err := storage.GetParticipant(contestID, athleteID)
	if err != nil {
		return CompletionResult{}, err
	}
	if p == nil {
		return CompletionResult{}, ErrParticipantNotFound
	}

	return Evaluate(c, activities, now), nil
}
