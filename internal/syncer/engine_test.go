package syncer_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Tomlord1122/takeout/internal/domain"
	"github.com/Tomlord1122/takeout/internal/repository"
	"github.com/Tomlord1122/takeout/internal/syncer"
	"github.com/Tomlord1122/takeout/internal/testutil"
)

func seedUser(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repository.NewGormAccountRepository(db).Create(ctx, &domain.Account{
		ID: id, Email: id + "@example.com", PasswordHash: "x", CreatedAt: time.Now(),
	}))
	v, err := repository.NewGormVersionRepository(db).Next(ctx)
	require.NoError(t, err)
	require.NoError(t, repository.NewGormUserRepository(db).Create(ctx, &domain.UserPublic{
		ID: id, Name: id, Username: id, JoinedAt: time.Now(), Version: v,
	}))
}

func mut(id int64, client, name, args string) syncer.Mutation {
	return syncer.Mutation{ID: id, ClientID: client, Name: name, Args: json.RawMessage(args)}
}

func opsFor(resp *syncer.PullResponse, table string) []syncer.PatchOp {
	var out []syncer.PatchOp
	for _, op := range resp.Patch {
		if op.TableName == table {
			out = append(out, op)
		}
	}
	return out
}

func TestEngine_PushPull(t *testing.T) {
	db := testutil.MigratedDB(t).GetDB()
	ctx := context.Background()
	seedUser(t, db, "alice")
	seedUser(t, db, "bob")
	e := syncer.NewEngine(db)

	// initial pull is a full reset
	first, err := e.Pull(ctx, "alice", syncer.PullRequest{ClientGroupID: "g-alice"})
	require.NoError(t, err)
	require.NotEmpty(t, first.Patch)
	assert.Equal(t, syncer.OpClear, first.Patch[0].Op)
	assert.Len(t, opsFor(first, syncer.TableUserPublic), 2)
	assert.Empty(t, opsFor(first, syncer.TableTodo))

	push, err := e.Push(ctx, "alice", syncer.PushRequest{
		ClientGroupID: "g-alice",
		Mutations: []syncer.Mutation{
			mut(1, "c1", "todo.insert", `{"id":"t1","text":"  buy milk "}`),
			mut(2, "c1", "todo.insert", `{"id":"t2","text":"walk dog","completed":true,"createdAt":1760000000000}`),
			mut(3, "c1", "todo.insert", `{"id":"t3","text":""}`),
			mut(4, "c1", "userState.update", `{"darkMode":true}`),
		},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 4, push.LastMutationIDs["c1"])
	require.Len(t, push.Errors, 1)
	assert.EqualValues(t, 3, push.Errors[0].ID)

	second, err := e.Pull(ctx, "alice", syncer.PullRequest{ClientGroupID: "g-alice", Cookie: &first.Cookie})
	require.NoError(t, err)
	assert.Greater(t, second.Cookie, first.Cookie)
	todos := opsFor(second, syncer.TableTodo)
	require.Len(t, todos, 2)
	assert.Equal(t, "t1", todos[0].Key)
	assert.Equal(t, "buy milk", todos[0].Value.(syncer.TodoRow).Text)
	assert.Len(t, opsFor(second, syncer.TableUserState), 1)
	assert.EqualValues(t, 4, second.LastMutationIDChanges["c1"])

	t.Run("pulled rows decode as insert arguments", func(t *testing.T) {
		raw, err := json.Marshal(todos[1].Value)
		require.NoError(t, err)
		var row struct {
			ID        string `json:"id"`
			Text      string `json:"text"`
			Completed bool   `json:"completed"`
			CreatedAt int64  `json:"createdAt"`
			UserID    string `json:"userId"`
		}
		require.NoError(t, json.Unmarshal(raw, &row))
		assert.Equal(t, "t2", row.ID)
		assert.EqualValues(t, 1760000000000, row.CreatedAt)
		assert.Equal(t, "alice", row.UserID)

		users := opsFor(first, syncer.TableUserPublic)
		raw, err = json.Marshal(users[0].Value)
		require.NoError(t, err)
		var profile map[string]any
		require.NoError(t, json.Unmarshal(raw, &profile))
		assert.IsType(t, float64(0), profile["joinedAt"])
	})

	t.Run("replayed mutations are skipped", func(t *testing.T) {
		resp, err := e.Push(ctx, "alice", syncer.PushRequest{
			ClientGroupID: "g-alice",
			Mutations:     []syncer.Mutation{mut(2, "c1", "todo.insert", `{"id":"t2","text":"again"}`)},
		})
		require.NoError(t, err)
		assert.EqualValues(t, 4, resp.LastMutationIDs["c1"])
		assert.Empty(t, resp.Errors)
	})

	t.Run("gaps are refused", func(t *testing.T) {
		_, err := e.Push(ctx, "alice", syncer.PushRequest{
			ClientGroupID: "g-alice",
			Mutations:     []syncer.Mutation{mut(9, "c1", "todo.delete", `{"id":"t1"}`)},
		})
		assert.ErrorIs(t, err, syncer.ErrOutOfOrder)
	})

	t.Run("other users cannot touch alice's todos", func(t *testing.T) {
		resp, err := e.Push(ctx, "bob", syncer.PushRequest{
			ClientGroupID: "g-bob",
			Mutations: []syncer.Mutation{
				mut(1, "cb", "todo.update", `{"id":"t1","text":"hacked"}`),
				mut(2, "cb", "todo.delete", `{"id":"t1"}`),
				mut(3, "cb", "userPublic.update", `{"id":"alice","name":"pwned"}`),
			},
		})
		require.NoError(t, err)
		assert.Len(t, resp.Errors, 3)

		bobPull, err := e.Pull(ctx, "bob", syncer.PullRequest{ClientGroupID: "g-bob"})
		require.NoError(t, err)
		assert.Empty(t, opsFor(bobPull, syncer.TableTodo))
		assert.Empty(t, opsFor(bobPull, syncer.TableUserState))
	})

	t.Run("client groups are bound to their user", func(t *testing.T) {
		_, err := e.Push(ctx, "bob", syncer.PushRequest{
			ClientGroupID: "g-alice",
			Mutations:     []syncer.Mutation{mut(1, "c-new", "todo.insert", `{"id":"tb","text":"x"}`)},
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("deletes replay as del", func(t *testing.T) {
		_, err := e.Push(ctx, "alice", syncer.PushRequest{
			ClientGroupID: "g-alice",
			Mutations: []syncer.Mutation{
				mut(5, "c1", "todo.delete", `{"id":"t1"}`),
				mut(6, "c1", "todo.clearCompleted", `{}`),
			},
		})
		require.NoError(t, err)

		third, err := e.Pull(ctx, "alice", syncer.PullRequest{ClientGroupID: "g-alice", Cookie: &second.Cookie})
		require.NoError(t, err)
		todos := opsFor(third, syncer.TableTodo)
		require.Len(t, todos, 2)
		for _, op := range todos {
			assert.Equal(t, syncer.OpDel, op.Op)
		}

		fresh, err := e.Pull(ctx, "alice", syncer.PullRequest{ClientGroupID: "g-alice"})
		require.NoError(t, err)
		assert.Empty(t, opsFor(fresh, syncer.TableTodo))
	})

	t.Run("cookie from the future resets", func(t *testing.T) {
		future := int64(1 << 40)
		resp, err := e.Pull(ctx, "alice", syncer.PullRequest{ClientGroupID: "g-alice", Cookie: &future})
		require.NoError(t, err)
		assert.Equal(t, syncer.OpClear, resp.Patch[0].Op)
	})
}

func TestEngine_Apply(t *testing.T) {
	db := testutil.MigratedDB(t).GetDB()
	ctx := context.Background()
	seedUser(t, db, "alice")
	e := syncer.NewEngine(db)

	require.NoError(t, e.Apply(ctx, "alice", "todo.insert", map[string]any{"id": "r1", "text": "from rest"}))
	err := e.Apply(ctx, "alice", "todo.insert", map[string]any{"id": "r1", "text": "dup"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.ErrorIs(t, e.Apply(ctx, "", "todo.insert", nil), domain.ErrUnauthenticated)

	resp, err := e.Pull(ctx, "alice", syncer.PullRequest{ClientGroupID: "g"})
	require.NoError(t, err)
	assert.Len(t, opsFor(resp, syncer.TableTodo), 1)
}

func TestEngine_ConcurrentWritesAreSerialized(t *testing.T) {
	db := testutil.MigratedDB(t).GetDB()
	ctx := context.Background()
	seedUser(t, db, "alice")
	e := syncer.NewEngine(db)

	const writers = 8
	const perWriter = 5

	// A reader pulls incrementally while the writers run and must still end
	// up with every committed row.
	seen := map[string]bool{}
	var cookie *int64
	pullOnce := func() error {
		resp, err := e.Pull(ctx, "alice", syncer.PullRequest{ClientGroupID: "g-reader", Cookie: cookie})
		if err != nil {
			return err
		}
		for _, op := range opsFor(resp, syncer.TableTodo) {
			seen[op.Key] = true
		}
		c := resp.Cookie
		cookie = &c
		return nil
	}

	stop := make(chan struct{})
	readerDone := make(chan error, 1)
	go func() {
		for {
			select {
			case <-stop:
				readerDone <- nil
				return
			default:
			}
			if err := pullOnce(); err != nil {
				readerDone <- err
				return
			}
		}
	}()

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if w%2 == 0 {
					errs <- e.Apply(ctx, "alice", "todo.insert", map[string]any{"id": id, "text": id})
					continue
				}
				resp, err := e.Push(ctx, "alice", syncer.PushRequest{
					ClientGroupID: "g-alice",
					Mutations: []syncer.Mutation{
						mut(int64(i+1), fmt.Sprintf("c%d", w), "todo.insert", fmt.Sprintf(`{"id":%q,"text":%q}`, id, id)),
					},
				})
				if err == nil && len(resp.Errors) > 0 {
					err = fmt.Errorf("mutation rejected: %s", resp.Errors[0].Error)
				}
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	close(stop)
	require.NoError(t, <-readerDone)
	require.NoError(t, pullOnce())
	assert.Len(t, seen, writers*perWriter)

	var versions []int64
	require.NoError(t, db.Model(&domain.Todo{}).Pluck("version", &versions).Error)
	require.Len(t, versions, writers*perWriter)
	unique := map[int64]bool{}
	for _, v := range versions {
		unique[v] = true
	}
	assert.Len(t, unique, len(versions), "every write gets its own version")
}

func TestEngine_IdenticalPullsAreCollapsed(t *testing.T) {
	db := testutil.MigratedDB(t).GetDB()
	ctx := context.Background()
	seedUser(t, db, "alice")
	e := syncer.NewEngine(db)
	require.NoError(t, e.Apply(ctx, "alice", "todo.insert", map[string]any{"id": "t1", "text": "x"}))

	// Hold the todos table so the first pull blocks while the rest queue up
	// behind it.
	lock := db.Begin()
	require.NoError(t, lock.Error)
	require.NoError(t, lock.Exec("LOCK TABLE todos IN ACCESS EXCLUSIVE MODE").Error)

	const callers = 5
	results := make([]*syncer.PullResponse, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.Pull(ctx, "alice", syncer.PullRequest{ClientGroupID: "g"})
		}(i)
	}
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, lock.Rollback().Error)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Len(t, opsFor(results[0], syncer.TableTodo), 1)
}
