package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/beliefpath-sync/internal/data/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/data/repos"
	domainagg "github.com/yungbote/beliefpath-sync/internal/domain/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/domain/audit"
	"github.com/yungbote/beliefpath-sync/internal/domain/bundle"
	"github.com/yungbote/beliefpath-sync/internal/domain/learning"
	"github.com/yungbote/beliefpath-sync/internal/domain/user"
	"github.com/yungbote/beliefpath-sync/internal/observability"
	"github.com/yungbote/beliefpath-sync/internal/platform/ctxutil"
	"github.com/yungbote/beliefpath-sync/internal/platform/dbctx"
	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

const syncOp = "SyncService.SyncData"

// LearnerSyncContract is the write boundary of one sync: every row of one
// user is reconciled in a single transaction.
var LearnerSyncContract = domainagg.Contract{
	Name:   "LearnerSync",
	Tables: []string{user.User{}.TableName(), learning.Progress{}.TableName(), learning.UserAchievement{}.TableName(), audit.SyncRun{}.TableName()},
	Notes:  "user, progress, achievements and aggregate XP commit together or not at all",
}

type SyncService interface {
	domainagg.Aggregate
	SyncData(ctx context.Context, id ctxutil.Identity, in bundle.Bundle) (bundle.Bundle, error)
}

type SyncServiceDeps struct {
	DB           *gorm.DB
	Log          *logger.Logger
	Users        repos.UserRepo
	Progress     repos.ProgressRepo
	Achievements repos.UserAchievementRepo
	SyncRuns     repos.SyncRunRepo
	Runner       aggregates.TxRunner
	Hooks        aggregates.Hooks
	MaxAttempts  int
	Locker       SyncLocker
	Metrics      *observability.Metrics
	Now          func() time.Time
}

type syncService struct {
	deps   SyncServiceDeps
	base   aggregates.BaseDeps
	log    *logger.Logger
	tracer trace.Tracer
}

func NewSyncService(deps SyncServiceDeps) (SyncService, error) {
	if deps.Users == nil || deps.Progress == nil || deps.Achievements == nil || deps.SyncRuns == nil {
		return nil, fmt.Errorf("sync service: repos are required")
	}
	if deps.Runner == nil && deps.DB == nil {
		return nil, fmt.Errorf("sync service: db or tx runner is required")
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Locker == nil {
		deps.Locker = NewNoopSyncLocker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Log.With("service", "SyncService")
	return &syncService{
		deps: deps,
		base: aggregates.BaseDeps{
			DB:          deps.DB,
			Log:         log,
			Runner:      deps.Runner,
			Hooks:       deps.Hooks,
			MaxAttempts: deps.MaxAttempts,
		}.WithDefaults(),
		log:    log,
		tracer: otel.Tracer("github.com/yungbote/beliefpath-sync/internal/services"),
	}, nil
}

func (s *syncService) Contract() domainagg.Contract { return LearnerSyncContract }

// ActionCounts tallies reconcile decisions for one entity kind.
type ActionCounts struct {
	Insert int `json:"insert"`
	Update int `json:"update"`
	Keep   int `json:"keep"`
}

func (c *ActionCounts) add(a Action) {
	switch a {
	case ActionInsert:
		c.Insert++
	case ActionUpdate:
		c.Update++
	default:
		c.Keep++
	}
}

type SyncSummary struct {
	User         ActionCounts `json:"user"`
	Progress     ActionCounts `json:"progress"`
	Achievements ActionCounts `json:"achievements"`
}

// Collision is one record where the client's version lost without being
// strictly older.
type Collision struct {
	Entity string          `json:"entity"`
	Key    string          `json:"key"`
	Reason CollisionReason `json:"reason"`
}

const (
	entityUser        = "user"
	entityProgress    = "progress"
	entityAchievement = "achievement"
)

type syncOutcome struct {
	user         user.User
	progress     []learning.Progress
	achievements []learning.UserAchievement
	summary      SyncSummary
	collisions   []Collision
}

func (s *syncService) SyncData(ctx context.Context, id ctxutil.Identity, in bundle.Bundle) (bundle.Bundle, error) {
	start := time.Now()
	externalID := strings.TrimSpace(id.ExternalID)
	ctx, span := s.tracer.Start(ctx, syncOp, trace.WithAttributes(
		attribute.Int("sync.incoming_progress", len(in.Progress)),
		attribute.Int("sync.incoming_achievements", len(in.Achievements)),
		attribute.Bool("sync.has_user", in.User != nil),
	))
	defer span.End()

	out, err := s.syncData(ctx, externalID, id, in)
	status := "success"
	if err != nil {
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.deps.Metrics.ObserveSync(status, time.Since(start))
	return out, err
}

func (s *syncService) syncData(ctx context.Context, externalID string, id ctxutil.Identity, in bundle.Bundle) (bundle.Bundle, error) {
	if externalID == "" {
		return bundle.Bundle{}, domainagg.NewError(domainagg.CodeValidation, syncOp, "missing external user id", nil)
	}
	if err := in.Validate(); err != nil {
		return bundle.Bundle{}, domainagg.Wrap(domainagg.CodeValidation, syncOp, err)
	}

	release, err := s.deps.Locker.Lock(ctx, "beliefpath:sync:"+externalID)
	if err != nil {
		return bundle.Bundle{}, domainagg.Wrap(domainagg.CodeRetryable, syncOp, err)
	}
	defer func() {
		// Release must run even when ctx is already done.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.log.Warn("sync lock release failed", "external_id", externalID, "error", err)
		}
	}()

	seed := UserSeed{ExternalID: externalID, Email: strings.TrimSpace(id.Email)}
	var outcome *syncOutcome
	attempts, err := aggregates.ExecuteWrite(ctx, s.base, syncOp, func(dbc dbctx.Context, attempt int) error {
		o, err := s.reconcileAll(dbc, seed, &in)
		if err != nil {
			return err
		}
		if err := s.recordRun(dbc, o, &in, attempt); err != nil {
			return err
		}
		outcome = o
		return nil
	})
	if err != nil {
		s.log.Error("sync failed", "external_id", externalID, "attempts", attempts, "error", err)
		return bundle.Bundle{}, err
	}

	s.report(externalID, outcome, attempts)
	return bundle.New(&outcome.user, outcome.progress, outcome.achievements), nil
}

// reconcileAll runs inside the transaction. Any error rolls back every write.
func (s *syncService) reconcileAll(dbc dbctx.Context, seed UserSeed, in *bundle.Bundle) (*syncOutcome, error) {
	now := s.deps.Now()
	o := &syncOutcome{}

	u, err := s.reconcileUser(dbc, seed, in.User, now, o)
	if err != nil {
		return nil, err
	}
	if err := s.reconcileProgress(dbc, u.ID, in.Progress, now, o); err != nil {
		return nil, err
	}
	if err := s.reconcileAchievements(dbc, u.ID, in.Achievements, now, o); err != nil {
		return nil, err
	}

	total, err := s.deps.Progress.SumEarnedXP(dbc, u.ID)
	if err != nil {
		return nil, fmt.Errorf("sum earned xp: %w", err)
	}
	level := user.LevelForXP(total)
	if u.TotalXP != total || u.CurrentLevel != level {
		if err := s.deps.Users.UpdateAggregates(dbc, u.ID, total, level); err != nil {
			return nil, fmt.Errorf("update aggregates: %w", err)
		}
	}
	u.TotalXP, u.CurrentLevel = total, level
	o.user = u
	return o, nil
}

func (s *syncService) reconcileUser(dbc dbctx.Context, seed UserSeed, incoming *bundle.User, now time.Time, o *syncOutcome) (user.User, error) {
	stored, err := s.deps.Users.GetByExternalID(dbc, seed.ExternalID)
	if err != nil {
		return user.User{}, fmt.Errorf("load user: %w", err)
	}
	merged, d := ReconcileUser(incoming, stored, seed, now)
	switch d.Action {
	case ActionInsert:
		if err := s.deps.Users.Create(dbc, &merged); err != nil {
			return user.User{}, fmt.Errorf("create user: %w", err)
		}
	case ActionUpdate:
		ok, err := s.deps.Users.UpdateProfileIfNewer(dbc, &merged)
		if err != nil {
			return user.User{}, fmt.Errorf("update user: %w", err)
		}
		if !ok {
			// The row moved past us after the read; what is stored now wins.
			fresh, err := s.deps.Users.GetByID(dbc, merged.ID)
			if err != nil || fresh == nil {
				return user.User{}, reloadErr("user", err)
			}
			merged, d = *fresh, Decision{Action: ActionKeep}
		}
	}
	o.summary.User.add(d.Action)
	if d.Collision != "" {
		o.collisions = append(o.collisions, Collision{Entity: entityUser, Key: merged.ID.String(), Reason: d.Collision})
	}
	return merged, nil
}

func (s *syncService) reconcileProgress(dbc dbctx.Context, userID uuid.UUID, incoming []bundle.Progress, now time.Time, o *syncOutcome) error {
	byKey := make(map[learning.ProgressKey]*learning.Progress, len(incoming))
	order := make([]learning.ProgressKey, 0, len(incoming))

	for i := range incoming {
		in := &incoming[i]
		key := in.Key()
		stored, seen := byKey[key]
		if !seen {
			var err error
			if stored, err = s.deps.Progress.GetByKey(dbc, userID, key); err != nil {
				return fmt.Errorf("load progress %s: %w", key, err)
			}
		}
		merged, d := ReconcileProgress(in, stored, userID, now)
		switch d.Action {
		case ActionInsert:
			if err := s.deps.Progress.Create(dbc, &merged); err != nil {
				return fmt.Errorf("create progress %s: %w", key, err)
			}
		case ActionUpdate:
			ok, err := s.deps.Progress.UpdateIfNewer(dbc, &merged)
			if err != nil {
				return fmt.Errorf("update progress %s: %w", key, err)
			}
			if !ok {
				fresh, err := s.deps.Progress.GetByKey(dbc, userID, key)
				if err != nil || fresh == nil {
					return reloadErr("progress "+key.String(), err)
				}
				merged, d = *fresh, Decision{Action: ActionKeep}
			}
		}
		o.summary.Progress.add(d.Action)
		if d.Collision != "" {
			o.collisions = append(o.collisions, Collision{Entity: entityProgress, Key: key.String(), Reason: d.Collision})
		}
		row := merged
		byKey[key] = &row
		if !seen {
			order = append(order, key)
		}
	}

	all, err := s.deps.Progress.ListByUserID(dbc, userID)
	if err != nil {
		return fmt.Errorf("list progress: %w", err)
	}
	o.progress = make([]learning.Progress, 0, len(all)+len(order))
	for _, key := range order {
		o.progress = append(o.progress, *byKey[key])
	}
	for _, row := range all {
		if _, referenced := byKey[row.Key()]; !referenced {
			o.progress = append(o.progress, *row)
		}
	}
	return nil
}

func (s *syncService) reconcileAchievements(dbc dbctx.Context, userID uuid.UUID, incoming []bundle.Achievement, now time.Time, o *syncOutcome) error {
	byKey := make(map[string]*learning.UserAchievement, len(incoming))
	order := make([]string, 0, len(incoming))

	for i := range incoming {
		in := &incoming[i]
		key := in.Key()
		stored, seen := byKey[key]
		if !seen {
			var err error
			if stored, err = s.deps.Achievements.GetByKey(dbc, userID, key); err != nil {
				return fmt.Errorf("load achievement %s: %w", key, err)
			}
		}
		merged, d := ReconcileAchievement(in, stored, userID, now)
		switch d.Action {
		case ActionInsert:
			if err := s.deps.Achievements.Create(dbc, &merged); err != nil {
				return fmt.Errorf("create achievement %s: %w", key, err)
			}
		case ActionUpdate:
			ok, err := s.deps.Achievements.UpdateIfGreater(dbc, &merged)
			if err != nil {
				return fmt.Errorf("update achievement %s: %w", key, err)
			}
			if !ok {
				fresh, err := s.deps.Achievements.GetByKey(dbc, userID, key)
				if err != nil || fresh == nil {
					return reloadErr("achievement "+key, err)
				}
				merged, d = *fresh, Decision{Action: ActionKeep}
			}
		}
		o.summary.Achievements.add(d.Action)
		if d.Collision != "" {
			o.collisions = append(o.collisions, Collision{Entity: entityAchievement, Key: key, Reason: d.Collision})
		}
		row := merged
		byKey[key] = &row
		if !seen {
			order = append(order, key)
		}
	}

	all, err := s.deps.Achievements.ListByUserID(dbc, userID)
	if err != nil {
		return fmt.Errorf("list achievements: %w", err)
	}
	o.achievements = make([]learning.UserAchievement, 0, len(all)+len(order))
	for _, key := range order {
		o.achievements = append(o.achievements, *byKey[key])
	}
	for _, row := range all {
		if _, referenced := byKey[row.AchievementID]; !referenced {
			o.achievements = append(o.achievements, *row)
		}
	}
	return nil
}

// reloadErr reports a row that vanished between a lost guarded write and the
// re-read that should have found it.
func reloadErr(what string, err error) error {
	if err == nil {
		err = gorm.ErrRecordNotFound
	}
	return fmt.Errorf("reload %s: %w", what, err)
}

func (s *syncService) recordRun(dbc dbctx.Context, o *syncOutcome, in *bundle.Bundle, attempt int) error {
	summary, err := json.Marshal(o.summary)
	if err != nil {
		return err
	}
	collisions := o.collisions
	if collisions == nil {
		collisions = []Collision{}
	}
	rawCollisions, err := json.Marshal(collisions)
	if err != nil {
		return err
	}
	run := &audit.SyncRun{
		ID:                   uuid.New(),
		UserID:               o.user.ID,
		IncomingProgress:     len(in.Progress),
		IncomingAchievements: len(in.Achievements),
		CollisionCount:       len(o.collisions),
		Summary:              datatypes.JSON(summary),
		Collisions:           datatypes.JSON(rawCollisions),
		Attempts:             attempt,
		CreatedAt:            s.deps.Now().UTC(),
	}
	if err := s.deps.SyncRuns.Create(dbc, run); err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

func (s *syncService) report(externalID string, o *syncOutcome, attempts int) {
	m := s.deps.Metrics
	for entity, c := range map[string]ActionCounts{
		entityUser:        o.summary.User,
		entityProgress:    o.summary.Progress,
		entityAchievement: o.summary.Achievements,
	} {
		m.AddSyncRecords(entity, string(ActionInsert), c.Insert)
		m.AddSyncRecords(entity, string(ActionUpdate), c.Update)
		m.AddSyncRecords(entity, string(ActionKeep), c.Keep)
	}
	for _, c := range o.collisions {
		m.IncSyncCollision(c.Entity, string(c.Reason))
		s.log.Info("sync collision", "external_id", externalID, "entity", c.Entity, "key", c.Key, "reason", c.Reason)
	}
	s.log.Debug("sync complete",
		"external_id", externalID,
		"attempts", attempts,
		"progress", len(o.progress),
		"achievements", len(o.achievements),
		"total_xp", o.user.TotalXP,
	)
}
