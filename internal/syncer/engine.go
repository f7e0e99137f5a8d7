package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/Tomlord1122/takeout/internal/domain"
	"github.com/Tomlord1122/takeout/internal/logger"
	"github.com/Tomlord1122/takeout/internal/metrics"
	"github.com/Tomlord1122/takeout/internal/repository"
)

var errAlreadyApplied = errors.New("mutation already applied")

// Engine applies pushed mutations and computes pull patches.
type Engine struct {
	db       *gorm.DB
	todos    repository.TodoRepository
	users    repository.UserRepository
	states   repository.UserStateRepository
	clients  repository.ClientRepository
	versions repository.VersionRepository
	mutators map[string]Mutator
	pulls    singleflight.Group
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{
		db:       db,
		todos:    repository.NewGormTodoRepository(db),
		users:    repository.NewGormUserRepository(db),
		states:   repository.NewGormUserStateRepository(db),
		clients:  repository.NewGormClientRepository(db),
		versions: repository.NewGormVersionRepository(db),
		mutators: DefaultMutators(),
	}
}

// IsClientError reports whether err should be answered as a client mistake.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalid) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrConflict)
}

func (e *Engine) bind(tx *gorm.DB, uid string, version int64) *Tx {
	return &Tx{
		UserID:  uid,
		Version: version,
		Todos:   e.todos.WithTx(tx),
		Users:   e.users.WithTx(tx),
		States:  e.states.WithTx(tx),
	}
}

func (e *Engine) mutator(name string) (Mutator, error) {
	m, ok := e.mutators[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mutator %q", domain.ErrInvalid, name)
	}
	return m, nil
}

// Apply runs one mutator outside of any client bookkeeping. The REST
// handlers write through here so their changes reach pulls too.
func (e *Engine) Apply(ctx context.Context, uid, name string, args any) error {
	if uid == "" {
		return domain.ErrUnauthenticated
	}
	m, err := e.mutator(name)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		version, err := e.versions.WithTx(tx).Next(ctx)
		if err != nil {
			return err
		}
		return m(ctx, e.bind(tx, uid, version), raw)
	})
	metrics.RecordMutation(name, resultLabel(err))
	return err
}

// Push applies mutations in order, each in its own transaction. A mutator
// that fails with a client error is rolled back but still consumed, so the
// client stops resending it.
func (e *Engine) Push(ctx context.Context, uid string, req PushRequest) (*PushResponse, error) {
	if uid == "" {
		return nil, domain.ErrUnauthenticated
	}
	if !acceptVersion(req.PushVersion, PushVersion) {
		return nil, fmt.Errorf("%w: push version %d", ErrUnsupportedVersion, req.PushVersion)
	}
	if req.ClientGroupID == "" {
		return nil, ErrMissingGroup
	}

	log := logger.From(ctx).With(logger.ClientGroupID(req.ClientGroupID))
	resp := &PushResponse{LastMutationIDs: map[string]int64{}}

	for _, m := range req.Mutations {
		if m.ClientID == "" {
			return resp, fmt.Errorf("%w: mutation %d has no clientID", domain.ErrInvalid, m.ID)
		}
		var mutErr error
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			version, err := e.versions.WithTx(tx).Next(ctx)
			if err != nil {
				return err
			}
			client, err := e.loadClient(ctx, tx, uid, req.ClientGroupID, m.ClientID)
			if err != nil {
				return err
			}
			if m.ID <= client.LastMutationID {
				resp.LastMutationIDs[m.ClientID] = client.LastMutationID
				return errAlreadyApplied
			}
			if m.ID > client.LastMutationID+1 {
				return fmt.Errorf("%w: client %s expected %d, got %d", ErrOutOfOrder, m.ClientID, client.LastMutationID+1, m.ID)
			}

			mutErr = tx.Transaction(func(inner *gorm.DB) error {
				mut, err := e.mutator(m.Name)
				if err != nil {
					return err
				}
				return mut(ctx, e.bind(inner, uid, version), m.Args)
			})
			if mutErr != nil && !IsClientError(mutErr) {
				return mutErr
			}

			client.LastMutationID = m.ID
			client.Version = version
			if err := e.clients.WithTx(tx).Upsert(ctx, client); err != nil {
				return err
			}
			resp.LastMutationIDs[m.ClientID] = m.ID
			return nil
		})

		switch {
		case errors.Is(err, errAlreadyApplied):
			metrics.RecordMutation(m.Name, "skipped")
			log.Debug("mutation already applied", logger.Mutation(m.Name, m.ID))
			continue
		case err != nil:
			metrics.RecordMutation(m.Name, "failed")
			return resp, err
		case mutErr != nil:
			metrics.RecordMutation(m.Name, "rejected")
			log.Info("mutation rejected", logger.Mutation(m.Name, m.ID), logger.Err(mutErr))
			resp.Errors = append(resp.Errors, MutationError{
				ID: m.ID, ClientID: m.ClientID, Name: m.Name, Error: mutErr.Error(),
			})
		default:
			metrics.RecordMutation(m.Name, "applied")
		}
	}
	return resp, nil
}

// loadClient returns the client row, creating it in memory on first use.
// Clients and client groups are bound to the user that first used them.
func (e *Engine) loadClient(ctx context.Context, tx *gorm.DB, uid, groupID, clientID string) (*domain.SyncClient, error) {
	clients := e.clients.WithTx(tx)
	client, err := clients.Get(ctx, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		owner, err := clients.GroupOwner(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if owner != "" && owner != uid {
			return nil, fmt.Errorf("%w: client group belongs to another user", domain.ErrForbidden)
		}
		return &domain.SyncClient{ID: clientID, ClientGroupID: groupID, UserID: uid}, nil
	}
	if err != nil {
		return nil, err
	}
	if client.UserID != uid || client.ClientGroupID != groupID {
		return nil, fmt.Errorf("%w: client %s belongs to another user or group", domain.ErrForbidden, clientID)
	}
	return client, nil
}

// Pull returns everything visible to uid that changed after req.Cookie.
func (e *Engine) Pull(ctx context.Context, uid string, req PullRequest) (*PullResponse, error) {
	if uid == "" {
		return nil, domain.ErrUnauthenticated
	}
	if !acceptVersion(req.PullVersion, PullVersion) {
		return nil, fmt.Errorf("%w: pull version %d", ErrUnsupportedVersion, req.PullVersion)
	}
	if req.ClientGroupID == "" {
		return nil, ErrMissingGroup
	}

	key := uid + "|" + req.ClientGroupID + "|"
	if req.Cookie != nil {
		key += strconv.FormatInt(*req.Cookie, 10)
	}
	v, err, _ := e.pulls.Do(key, func() (any, error) {
		return e.pull(ctx, uid, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*PullResponse), nil
}

func (e *Engine) pull(ctx context.Context, uid string, req PullRequest) (*PullResponse, error) {
	resp := &PullResponse{LastMutationIDChanges: map[string]int64{}, Patch: []PatchOp{}}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := e.versions.WithTx(tx).Current(ctx)
		if err != nil {
			return err
		}
		resp.Cookie = current

		reset := req.Cookie == nil || *req.Cookie > current
		var since int64
		if !reset {
			since = *req.Cookie
		} else {
			resp.Patch = append(resp.Patch, PatchOp{Op: OpClear})
		}

		todos, err := e.todos.WithTx(tx).ListChangedSince(ctx, uid, since)
		if err != nil {
			return err
		}
		for i := range todos {
			t := todos[i]
			switch {
			case t.Deleted && reset:
				// the client is rebuilding from scratch and never needs the tombstone
			case t.Deleted:
				resp.Patch = append(resp.Patch, PatchOp{Op: OpDel, TableName: TableTodo, Key: t.ID})
			default:
				resp.Patch = append(resp.Patch, PatchOp{Op: OpPut, TableName: TableTodo, Key: t.ID, Value: NewTodoRow(&t)})
			}
		}

		users, err := e.users.WithTx(tx).ListChangedSince(ctx, since)
		if err != nil {
			return err
		}
		for i := range users {
			u := users[i]
			if domain.CanReadUserPublic(uid, &u) {
				resp.Patch = append(resp.Patch, PatchOp{Op: OpPut, TableName: TableUserPublic, Key: u.ID, Value: NewUserPublicRow(&u)})
			}
		}

		state, err := e.states.WithTx(tx).ChangedSince(ctx, uid, since)
		if err != nil {
			return err
		}
		if state != nil && domain.CanReadUserState(uid, state) {
			resp.Patch = append(resp.Patch, PatchOp{Op: OpPut, TableName: TableUserState, Key: state.UserID, Value: state})
		}

		clients, err := e.clients.WithTx(tx).ListChangedSince(ctx, req.ClientGroupID, since)
		if err != nil {
			return err
		}
		for _, c := range clients {
			if c.UserID == uid {
				resp.LastMutationIDChanges[c.ID] = c.LastMutationID
			}
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, op := range resp.Patch {
		counts[op.Op]++
	}
	for op, n := range counts {
		metrics.RecordPullOps(op, n)
	}
	logger.From(ctx).Debug("pull",
		logger.ClientGroupID(req.ClientGroupID),
		zap.Int64("cookie", resp.Cookie),
		zap.Int("ops", len(resp.Patch)))
	return resp, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "applied"
	case IsClientError(err):
		return "rejected"
	default:
		return "failed"
	}
}
