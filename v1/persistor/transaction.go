package persistor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Aleph-Alpha/persistor/v1/database"
	"github.com/Aleph-Alpha/persistor/v1/model"
)

// objectSet is an insertion ordered set of objects keyed by instance id.
type objectSet struct {
	order []string
	items map[string]*model.Object
}

func newObjectSet() *objectSet {
	return &objectSet{items: map[string]*model.Object{}}
}

func (s *objectSet) add(obj *model.Object) {
	id := obj.InstanceID()
	if _, ok := s.items[id]; ok {
		return
	}
	s.items[id] = obj
	s.order = append(s.order, id)
}

func (s *objectSet) has(obj *model.Object) bool {
	_, ok := s.items[obj.InstanceID()]
	return ok
}

func (s *objectSet) remove(obj *model.Object) {
	delete(s.items, obj.InstanceID())
}

func (s *objectSet) len() int { return len(s.items) }

func (s *objectSet) list() []*model.Object {
	out := make([]*model.Object, 0, len(s.items))
	for _, id := range s.order {
		if obj, ok := s.items[id]; ok {
			out = append(out, obj)
		}
	}
	return out
}

// take empties the set and returns what it held.
func (s *objectSet) take() []*model.Object {
	out := s.list()
	s.order = nil
	s.items = map[string]*model.Object{}
	return out
}

type deleteQuery struct {
	tmpl  *model.Template
	query Query
}

// commitUndo remembers what a rolled back commit has to put back: the
// pending work it consumed and the versions of the rows it wrote.
type commitUndo struct {
	dirty         []*model.Object
	deleted       []*model.Object
	deleteQueries []deleteQuery

	written  *objectSet
	versions map[string]int64
	resave   map[string]bool
}

func newCommitUndo(t *Transaction) *commitUndo {
	return &commitUndo{
		dirty:         t.dirty.list(),
		deleted:       t.deleted.list(),
		deleteQueries: append([]deleteQuery(nil), t.deleteQueries...),
		written:       newObjectSet(),
		versions:      map[string]int64{},
		resave:        map[string]bool{},
	}
}

// remember records the version obj had before its first write of the
// commit. resave puts it back into the dirty set on rollback.
func (u *commitUndo) remember(obj *model.Object, resave bool) {
	id := obj.InstanceID()
	if resave {
		u.resave[id] = true
	}
	if u.written.has(obj) {
		return
	}
	u.written.add(obj)
	u.versions[id] = obj.Version
}

// restore undoes the bookkeeping of a failed commit so that it can be
// committed again.
func (u *commitUndo) restore(t *Transaction) {
	for _, obj := range u.written.list() {
		obj.Version = u.versions[obj.InstanceID()]
	}
	for _, obj := range u.dirty {
		obj.SetDirtyFlag(true)
		t.dirty.add(obj)
	}
	for _, obj := range u.written.list() {
		if u.resave[obj.InstanceID()] {
			obj.SetDirtyFlag(true)
			t.dirty.add(obj)
		}
	}
	for _, obj := range u.deleted {
		t.deleted.add(obj)
	}
	t.deleteQueries = u.deleteQueries
	t.saved.take()
}

// Transaction accumulates the objects of one unit of work until it is
// committed. A Transaction is not safe for concurrent use.
type Transaction struct {
	ID string

	// PreSave runs inside the native transaction before anything is written.
	PreSave func(ctx context.Context, txn *Transaction) error

	// PostSave runs inside the native transaction after every write. changes
	// is nil unless the commit asked for change notification.
	PostSave func(ctx context.Context, txn *Transaction, changes ChangeTracking) error

	// OnUpdateConflict turns optimistic lock failures into a callback. The
	// commit then goes on and finally fails with ErrUpdateConflict, so the
	// handler can collect every conflicting object in one pass.
	OnUpdateConflict func(obj *model.Object)

	// TouchTop bumps the version of the top level document of every object
	// marked dirty.
	TouchTop bool

	dirty   *objectSet
	deleted *objectSet
	touched *objectSet
	saved   *objectSet

	deleteQueries  []deleteQuery
	updateConflict bool
	undo           *commitUndo
	changes        ChangeTracking

	// clients holds the native transactions by database alias while a
	// commit is running.
	clients map[string]database.Client
}

// NewTransaction creates an empty transaction.
func NewTransaction() *Transaction {
	return &Transaction{
		ID:      uuid.NewString(),
		dirty:   newObjectSet(),
		deleted: newObjectSet(),
		touched: newObjectSet(),
		saved:   newObjectSet(),
	}
}

// UpdateConflict reports whether the last commit met an update conflict
// that was handed to OnUpdateConflict.
func (t *Transaction) UpdateConflict() bool { return t.updateConflict }

// Changes returns the change tracking of the last commit.
func (t *Transaction) Changes() ChangeTracking { return t.changes }

// Dirty returns the objects waiting to be saved.
func (t *Transaction) Dirty() []*model.Object { return t.dirty.list() }

// Deleted returns the objects waiting to be deleted.
func (t *Transaction) Deleted() []*model.Object { return t.deleted.list() }

func (t *Transaction) committing() bool { return t.clients != nil }

// CommitOptions controls a commit.
type CommitOptions struct {
	// NotifyChanges records change tracking for templates that enable it and
	// hands it to PostSave and the configured ChangePublisher.
	NotifyChanges bool
}

// SetDirty enlists obj for saving in txn, which must not be nil. When its
// template cascades saves, every object of its document is enlisted as well.
func (p *Persistor) SetDirty(obj *model.Object, txn *Transaction) {
	if obj == nil || obj.Template().Schema == nil {
		return
	}
	obj.SetDirtyFlag(true)
	txn.dirty.add(obj)

	if obj.Template().Schema.CascadeSave {
		top := getTopObject(obj)
		if top == nil {
			p.logger.Warn("api.setDirty", nil, logFields("api", "setDirty", map[string]interface{}{
				"template": obj.Template().Name,
				"id":       obj.ID,
				"message":  "setDirty called for an orphan",
			}))
		}
		if top != nil && top.Template().Schema.CascadeSave {
			enumerateDocumentObjects(top, func(o *model.Object) {
				if o.Template().Schema == nil || o.IsTransient() {
					return
				}
				// objects already written by a running commit are only
				// saved again when marked dirty directly
				if txn.committing() && txn.saved.has(o) {
					return
				}
				o.SetDirtyFlag(true)
				txn.dirty.add(o)
				if txn.TouchTop {
					if t := getTopObject(o); t != nil {
						txn.touched.add(t)
					}
				}
			})
		}
	}

	if txn.TouchTop {
		if top := getTopObject(obj); top != nil {
			txn.touched.add(top)
		}
	}
}

// SetAsDeleted enlists obj for deletion in txn, which must not be nil.
func (p *Persistor) SetAsDeleted(obj *model.Object, txn *Transaction) {
	if obj == nil || obj.Template().Schema == nil {
		return
	}
	obj.SetDeletedFlag(true)
	txn.deleted.add(obj)
}

// Commit writes the transaction inside one native transaction per
// relational database. Document store writes are not transactional and go
// out as they are reached. Deadlocks surface as ErrUpdateConflict.
func (p *Persistor) Commit(ctx context.Context, txn *Transaction, opts CommitOptions) (err error) {
	if txn == nil {
		return fmt.Errorf("%w: no transaction to commit", ErrConfiguration)
	}
	ctx, end := p.operation(ctx, "commit", txn.ID)
	size := 0
	defer func() { end(err, size) }()

	p.debug("api", "commit", map[string]interface{}{"txn": txn.ID, "dirty": txn.dirty.len(), "deleted": txn.deleted.len()})

	txn.updateConflict = false
	txn.changes = nil
	if opts.NotifyChanges {
		txn.changes = ChangeTracking{}
	}

	if err = p.ensureTables(ctx, transactionTemplates(txn)); err != nil {
		return p.logFailure("api", "end", err, map[string]interface{}{"txn": txn.ID})
	}

	var handles []*database.Handle
	for _, h := range p.dbs.Handles() {
		if !h.IsDocumentStore() && h.SQL != nil {
			handles = append(handles, h)
		}
	}
	txn.clients = map[string]database.Client{}
	txn.undo = newCommitUndo(txn)
	err = p.inTransactions(ctx, handles, txn, func(ctx context.Context) error {
		return p.commitSteps(ctx, txn, opts)
	})
	undo := txn.undo
	txn.clients = nil
	txn.undo = nil
	size = txn.saved.len()

	if err != nil {
		undo.restore(txn)
		if errors.Is(err, database.ErrDeadlock) {
			err = fmt.Errorf("%w: %w", ErrUpdateConflict, err)
		}
		p.debug("api", "end", map[string]interface{}{"txn": txn.ID, "message": "transaction rolled back " + err.Error()})
		return p.logFailure("api", "end", err, map[string]interface{}{"txn": txn.ID})
	}

	p.debug("api", "end", map[string]interface{}{"txn": txn.ID, "message": "transaction completed"})
	txn.saved.take()
	txn.touched.take()

	if opts.NotifyChanges && p.publisher != nil && txn.changes.Len() > 0 {
		if perr := p.publisher.Publish(ctx, txn.changes); perr != nil {
			p.logger.Error("api.publishChanges", perr, logFields("api", "publishChanges", map[string]interface{}{"txn": txn.ID}))
		}
	}
	return nil
}

// inTransactions nests one native transaction per handle around fn.
func (p *Persistor) inTransactions(ctx context.Context, handles []*database.Handle, txn *Transaction, fn func(ctx context.Context) error) error {
	if len(handles) == 0 {
		return fn(ctx)
	}
	h := handles[0]
	return h.SQL.Transaction(ctx, func(tx database.Client) error {
		txn.clients[h.Alias] = tx
		return p.inTransactions(ctx, handles[1:], txn, fn)
	})
}

func (p *Persistor) commitSteps(ctx context.Context, txn *Transaction, opts CommitOptions) error {
	if txn.PreSave != nil {
		if err := txn.PreSave(ctx, txn); err != nil {
			return err
		}
	}

	// saving one object may dirty others, so drain in passes
	for txn.dirty.len() > 0 {
		for _, obj := range txn.dirty.take() {
			if err := p.persistSave(ctx, obj, txn); err != nil {
				return err
			}
			action := ActionUpdate
			if obj.Version == 1 {
				action = ActionInsert
			}
			generateChanges(obj, action, txn.changes, opts.NotifyChanges)
		}
	}

	for txn.deleted.len() > 0 {
		for _, obj := range txn.deleted.take() {
			if err := p.persistDelete(ctx, obj, txn); err != nil {
				return err
			}
			generateChanges(obj, ActionDelete, txn.changes, opts.NotifyChanges)
		}
	}

	for len(txn.deleteQueries) > 0 {
		queries := txn.deleteQueries
		txn.deleteQueries = nil
		for _, dq := range queries {
			if _, err := p.deleteByQueryNow(ctx, dq.tmpl, dq.query, txn); err != nil {
				return err
			}
		}
	}

	for _, obj := range txn.touched.list() {
		if txn.saved.has(obj) {
			continue
		}
		if err := p.persistTouch(ctx, obj, txn); err != nil {
			return err
		}
	}

	if txn.PostSave != nil {
		if err := txn.PostSave(ctx, txn, txn.changes); err != nil {
			return err
		}
	}

	if txn.updateConflict {
		return ErrUpdateConflict
	}
	return nil
}

// persistSave writes one object to whichever backend stores it.
func (p *Persistor) persistSave(ctx context.Context, obj *model.Object, txn *Transaction) error {
	tmpl := obj.Template()
	if tmpl.Schema == nil || obj.IsTransient() {
		return nil
	}
	// already written as part of its document
	if txn.saved.has(obj) && !obj.IsDirty() {
		return nil
	}
	h, err := p.handleFor(tmpl)
	if err != nil {
		return err
	}
	if h.IsDocumentStore() {
		err = p.saveMongo(ctx, h, obj, txn)
	} else {
		if txn.undo != nil {
			txn.undo.remember(obj, true)
		}
		err = p.saveKnex(ctx, obj, txn)
	}
	if err != nil {
		return err
	}
	obj.SetDirtyFlag(false)
	txn.saved.add(obj)
	return nil
}

func (p *Persistor) persistDelete(ctx context.Context, obj *model.Object, txn *Transaction) error {
	tmpl := obj.Template()
	if tmpl.Schema == nil || obj.ID == "" {
		return nil
	}
	h, err := p.handleFor(tmpl)
	if err != nil {
		return err
	}
	if h.IsDocumentStore() {
		return p.deleteMongo(ctx, h, obj)
	}
	return p.deleteKnex(ctx, obj, txn)
}

func (p *Persistor) persistTouch(ctx context.Context, obj *model.Object, txn *Transaction) error {
	tmpl := obj.Template()
	if tmpl.Schema == nil || obj.ID == "" {
		return nil
	}
	h, err := p.handleFor(tmpl)
	if err != nil {
		return err
	}
	if h.IsDocumentStore() {
		return p.touchMongo(ctx, h, obj)
	}
	if txn.undo != nil {
		txn.undo.remember(obj, false)
	}
	return p.touchKnex(ctx, obj, txn)
}

// handleFor routes a template to its database.
func (p *Persistor) handleFor(tmpl *model.Template) (*database.Handle, error) {
	name := storageName(tmpl)
	if name == "" {
		return nil, fmt.Errorf("%w: %s is missing a schema entry", ErrConfiguration, tmpl.Name)
	}
	h, err := p.dbs.ForCollection(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return h, nil
}

// sqlClient returns the client a relational write of tmpl goes through:
// the native transaction of a running commit, the plain connection
// otherwise.
func (p *Persistor) sqlClient(tmpl *model.Template, txn *Transaction) (database.Client, error) {
	h, err := p.handleFor(tmpl)
	if err != nil {
		return nil, err
	}
	if h.IsDocumentStore() || h.SQL == nil {
		return nil, fmt.Errorf("%w: %s is not stored in a relational database", ErrConfiguration, tmpl.Name)
	}
	if txn != nil && txn.clients != nil {
		if c, ok := txn.clients[h.Alias]; ok {
			return c, nil
		}
	}
	return h.SQL, nil
}

// saveAll saves the dirty objects of txn outside a native transaction until
// no pass finds more work.
func (p *Persistor) saveAll(ctx context.Context, txn *Transaction) error {
	for txn.dirty.len() > 0 {
		for _, obj := range txn.dirty.take() {
			if err := p.persistSave(ctx, obj, txn); err != nil {
				return err
			}
		}
	}
	if txn.updateConflict {
		return ErrUpdateConflict
	}
	return nil
}

// Session holds a default transaction for callers that do not pass one
// around explicitly.
type Session struct {
	p       *Persistor
	current *Transaction
}

// NewSession creates a session without a current transaction.
func (p *Persistor) NewSession() *Session {
	return &Session{p: p}
}

// Begin starts a new default transaction and returns it.
func (s *Session) Begin() *Transaction {
	s.current = NewTransaction()
	return s.current
}

// BeginTransaction starts a transaction that does not become the default.
func (s *Session) BeginTransaction() *Transaction {
	return NewTransaction()
}

// Current returns the default transaction, starting one when needed.
func (s *Session) Current() *Transaction {
	if s.current == nil {
		return s.Begin()
	}
	return s.current
}

func (s *Session) resolve(txn *Transaction) *Transaction {
	if txn != nil {
		return txn
	}
	return s.Current()
}

// SetDirty enlists obj in txn, or in the default transaction when txn is nil.
func (s *Session) SetDirty(obj *model.Object, txn *Transaction) {
	s.p.SetDirty(obj, s.resolve(txn))
}

// SetAsDeleted enlists obj for deletion in txn or the default transaction.
func (s *Session) SetAsDeleted(obj *model.Object, txn *Transaction) {
	s.p.SetAsDeleted(obj, s.resolve(txn))
}

// Touch enlists obj for a version bump in txn or the default transaction.
func (s *Session) Touch(obj *model.Object, txn *Transaction) {
	if obj == nil || obj.Template().Schema == nil {
		return
	}
	s.resolve(txn).touched.add(obj)
}

// SaveAll saves the dirty objects of the default transaction without a
// native transaction, then runs its PostSave hook.
func (s *Session) SaveAll(ctx context.Context) error {
	txn := s.Current()
	if err := s.p.ensureTables(ctx, transactionTemplates(txn)); err != nil {
		return s.p.logFailure("api", "saveAll", err, map[string]interface{}{"txn": txn.ID})
	}
	if err := s.p.saveAll(ctx, txn); err != nil {
		return s.p.logFailure("api", "saveAll", err, map[string]interface{}{"txn": txn.ID})
	}
	if txn.PostSave != nil {
		if err := txn.PostSave(ctx, txn, nil); err != nil {
			return err
		}
	}
	txn.saved.take()
	return nil
}

// Commit commits txn, or the default transaction when txn is nil.
func (s *Session) Commit(ctx context.Context, txn *Transaction, opts CommitOptions) error {
	return s.p.Commit(ctx, s.resolve(txn), opts)
}

// End commits the default transaction.
func (s *Session) End(ctx context.Context) error {
	return s.p.Commit(ctx, s.Current(), CommitOptions{})
}
