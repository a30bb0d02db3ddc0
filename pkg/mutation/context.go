package mutation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNoTx = errors.New("mutation: transaction not started")

// Context manages one write transaction and the change events it produces.
// Events are only published once the transaction has committed, so observers
// never see a change that could still roll back.
type Context struct {
	db        *sql.DB
	tx        *sql.Tx
	events    []Event
	publisher Publisher
	skipTx    bool
	done      bool
}

type Option func(*Context)

// WithPublisher sets the publisher for auto-publishing events after commit.
func WithPublisher(p Publisher) Option {
	return func(c *Context) {
		c.publisher = p
	}
}

// WithoutTX skips the database transaction: Begin is a no-op and Commit only
// publishes. Backends that provide their own atomicity (the in-memory store)
// use this mode.
func WithoutTX() Option {
	return func(c *Context) {
		c.skipTx = true
	}
}

func New(db *sql.DB, opts ...Option) *Context {
	c := &Context{
		db:     db,
		events: make([]Event, 0, 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.db == nil {
		c.skipTx = true
	}
	return c
}

func (c *Context) Begin(ctx context.Context) error {
	if c.skipTx {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mutation: begin: %w", err)
	}
	c.tx = tx
	return nil
}

// Rollback aborts the transaction and drops collected events. It is safe to
// call after Commit, which makes it suitable for defer.
func (c *Context) Rollback() error {
	c.events = c.events[:0]
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// Commit commits the transaction and then publishes the collected events.
func (c *Context) Commit(ctx context.Context) error {
	if c.tx != nil {
		if err := c.tx.Commit(); err != nil {
			c.tx = nil
			c.events = c.events[:0]
			return fmt.Errorf("mutation: commit: %w", err)
		}
		c.tx = nil
	} else if !c.skipTx {
		return ErrNoTx
	}
	c.done = true

	if c.publisher != nil && len(c.events) > 0 {
		c.publisher.PublishAll(c.events)
	}
	return nil
}

// TX returns the underlying transaction, nil in TX-free mode.
func (c *Context) TX() *sql.Tx {
	return c.tx
}

func (c *Context) Track(evt Event) {
	c.events = append(c.events, evt)
}

func (c *Context) Events() []Event {
	return c.events
}

func (c *Context) IsTxFree() bool {
	return c.skipTx
}

// Committed reports whether Commit succeeded.
func (c *Context) Committed() bool {
	return c.done
}

// Run executes fn inside a scoped transaction: it commits when fn returns nil
// and rolls back on error or panic.
func Run(ctx context.Context, db *sql.DB, fn func(mc *Context) error, opts ...Option) (err error) {
	mc := New(db, opts...)
	if err := mc.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = mc.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := mc.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("mutation: rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(mc); err != nil {
		return err
	}
	return mc.Commit(ctx)
}
