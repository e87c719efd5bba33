// Package kite is the public face of the engine: it owns a store, hands
// out prepared statements for compiled programs, and exposes row
// iteration in the database/sql Next/Scan shape.
package kite

import (
	"github.com/kitedb/kite/internal/CF"
	"github.com/kitedb/kite/internal/DS"
	"github.com/kitedb/kite/internal/SF/errors"
	"github.com/kitedb/kite/internal/TM"
	"github.com/kitedb/kite/internal/VM"
	"github.com/kitedb/kite/internal/log"
)

// Engine is an in-memory database instance. One engine may prepare many
// statements; statements run one at a time.
type Engine struct {
	store *DS.Store
	txn   *TM.Controller
	cfg   CF.Config
}

// Open creates an engine with the given configuration; nil means
// defaults.
func Open(c *CF.Config) (*Engine, error) {
	cfg := CF.Default()
	if c != nil {
		cfg = *c
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Init(cfg.LogVerbosity)
	store := DS.NewStore()
	return &Engine{
		store: store,
		txn:   TM.NewController(store),
		cfg:   cfg,
	}, nil
}

// OpenWithConfigFile loads a TOML configuration and opens an engine on
// it.
func OpenWithConfigFile(path string) (*Engine, error) {
	cfg, err := CF.Load(path)
	if err != nil {
		return nil, err
	}
	return Open(&cfg)
}

// CreateTable allocates a rowid-keyed tree and returns its root number
// for use in OpenRead/OpenWrite instructions.
func (e *Engine) CreateTable() int {
	return e.store.CreateTree(nil)
}

// CreateIndex allocates a tree ordered by the key description.
func (e *Engine) CreateIndex(ki *VM.KeyInfo) int {
	return e.store.CreateTree(ki.Compare)
}

// Store exposes the underlying tree store for direct seeding in tests
// and tools.
func (e *Engine) Store() *DS.Store { return e.store }

// Prepare resolves a program against the engine's limits and returns a
// statement ready to step.
func (e *Engine) Prepare(p *VM.Program) (*Stmt, error) {
	if err := p.Resolve(e.cfg); err != nil {
		return nil, err
	}
	return &Stmt{engine: e, prog: p}, nil
}

// PrepareImage deserializes a marshaled program and prepares it.
func (e *Engine) PrepareImage(data []byte) (*Stmt, error) {
	p, err := VM.UnmarshalProgram(data)
	if err != nil {
		return nil, err
	}
	return e.Prepare(p)
}

// Stmt is a prepared statement. Each Exec or Step sequence runs on a
// fresh VM, so a statement can be re-run after completion.
type Stmt struct {
	engine *Engine
	prog   *VM.Program
	vm     *VM.VM
	params []VM.Value
}

// Bind sets parameter i (zero-based) for the next run.
func (s *Stmt) Bind(i int, v VM.Value) error {
	if i < 0 {
		return errors.Errorf(errors.KT_RANGE, "parameter index %d", i)
	}
	for len(s.params) <= i {
		s.params = append(s.params, VM.NullValue())
	}
	s.params[i] = v
	return nil
}

func (s *Stmt) ensureVM() error {
	if s.vm != nil {
		return nil
	}
	vm, err := VM.New(s.prog, s.engine.store, s.engine.txn, s.engine.cfg)
	if err != nil {
		return err
	}
	for i, v := range s.params {
		if err := vm.Bind(i, v); err != nil {
			return err
		}
	}
	s.vm = vm
	return nil
}

// Step advances to the next result row. It reports false when the
// program has halted; check Err afterwards.
func (s *Stmt) Step() (bool, error) {
	if err := s.ensureVM(); err != nil {
		return false, err
	}
	res, err := s.vm.Step()
	if err != nil {
		return false, err
	}
	return res == VM.StepRow, nil
}

// Row returns the pending result row after a true Step.
func (s *Stmt) Row() []VM.Value {
	if s.vm == nil {
		return nil
	}
	return s.vm.Row()
}

// Interrupt stops the running program at the next instruction boundary.
// Safe from any goroutine.
func (s *Stmt) Interrupt() {
	if s.vm != nil {
		s.vm.Interrupt()
	}
}

// Status reports how the last run ended.
func (s *Stmt) Status() (VM.Status, error) {
	if s.vm == nil {
		return VM.StatusOK, nil
	}
	return s.vm.HaltStatus()
}

// Reset discards the current run so the statement can execute again
// with fresh bindings.
func (s *Stmt) Reset() {
	s.vm = nil
}

// Exec drains the statement, calling yield per row, then resets it.
func (s *Stmt) Exec(yield func(row []VM.Value) error) (VM.Status, error) {
	if err := s.ensureVM(); err != nil {
		return VM.StatusAborted, err
	}
	status, err := s.vm.Run(yield)
	s.Reset()
	return status, err
}

// Query drains the statement into a Rows cursor.
func (s *Stmt) Query() (*Rows, error) {
	rows := &Rows{pos: -1}
	if _, err := s.Exec(func(row []VM.Value) error {
		cp := make([]VM.Value, len(row))
		copy(cp, row)
		rows.data = append(rows.data, cp)
		return nil
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// Rows iterates a fully materialized result set.
type Rows struct {
	data [][]VM.Value
	pos  int
}

// Next advances to the next row, reporting false past the end.
func (r *Rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

// Len reports the number of rows.
func (r *Rows) Len() int { return len(r.data) }

// Scan copies the current row's columns into dest as native Go values.
func (r *Rows) Scan(dest ...interface{}) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return errors.New(errors.KT_MISUSE, "Scan without a current row")
	}
	row := r.data[r.pos]
	for i := range dest {
		if i >= len(row) {
			break
		}
		switch d := dest[i].(type) {
		case *int64:
			*d = row[i].AsInt()
		case *float64:
			*d = row[i].AsReal()
		case *string:
			*d = row[i].AsText()
		case *[]byte:
			*d = append((*d)[:0], row[i].Blob()...)
		case *interface{}:
			*d = row[i].ToAny()
		default:
			return errors.Errorf(errors.KT_MISUSE, "Scan destination %d has unsupported type %T", i, dest[i])
		}
	}
	return nil
}
