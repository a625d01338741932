package report

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/systolica/mat"
	"github.com/sarchlab/systolica/memory"
	"github.com/tebeka/atexit"
)

// The tables a recorder writes.
const (
	LayerTable  = "layers"
	AccessTable = "dram_accesses"
)

type layerEntry struct {
	LayerID           int
	Name              string
	StartCycle        int64
	TotalCycles       int64
	StallCycles       int64
	OverallUtil       float64
	MappingEfficiency float64
	ComputeUtil       float64
	IfmapSRAMBW       float64
	FilterSRAMBW      float64
	OfmapSRAMBW       float64
	IfmapDRAMBW       float64
	FilterDRAMBW      float64
	OfmapDRAMBW       float64
	IfmapDRAMReads    int64
	FilterDRAMReads   int64
	OfmapDRAMWrites   int64
	SimulatedTime     float64
	WallTimeNS        int64
	RSSBytes          int64
}

type accessEntry struct {
	LayerID int
	Buffer  string
	Kind    string
	Cycle   int64
	Addrs   string
}

type table struct {
	entries []any
}

// Recorder stores layer results and DRAM traffic in a SQLite database.
// Entries are buffered and written in batches inside one transaction.
type Recorder struct {
	*sql.DB

	lock       sync.Mutex
	dbName     string
	tables     map[string]*table
	tableOrder []string
	batchSize  int
	entryCount int
}

// NewRecorder creates a database named <name>.sqlite3. An empty name picks
// a unique one. Buffered entries are flushed when the program exits through
// atexit.
func NewRecorder(name string) (*Recorder, error) {
	if name == "" {
		name = "systolica_" + xid.New().String()
	}

	filename := name + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}

	r, err := NewRecorderWithDB(db)
	if err != nil {
		return nil, err
	}

	r.dbName = name

	return r, nil
}

// NewRecorderWithDB creates a recorder on an open database.
func NewRecorderWithDB(db *sql.DB) (*Recorder, error) {
	r := &Recorder{
		DB:        db,
		batchSize: 100000,
		tables:    make(map[string]*table),
	}

	if err := r.createTable(LayerTable, layerEntry{}); err != nil {
		return nil, err
	}

	if err := r.createTable(AccessTable, accessEntry{}); err != nil {
		return nil, err
	}

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			slog.Error("Recorder", "Behavior", "FlushAtExit", "Error", err)
		}
	})

	return r, nil
}

// Name returns the name of the database, without the extension.
func (r *Recorder) Name() string {
	return r.dbName
}

func isAllowedKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func (r *Recorder) createTable(name string, sample any) error {
	for _, f := range structs.Fields(sample) {
		if !isAllowedKind(f.Kind()) {
			return fmt.Errorf("field %s of table %s cannot be stored",
				f.Name(), name)
		}
	}

	fields := strings.Join(structs.Names(sample), ", \n\t")
	query := `CREATE TABLE IF NOT EXISTS ` + name +
		` (` + "\n\t" + fields + "\n" + `);`

	if _, err := r.Exec(query); err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}

	r.tables[name] = &table{}
	r.tableOrder = append(r.tableOrder, name)

	return nil
}

func (r *Recorder) insert(tableName string, entry any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.tables[tableName].entries = append(r.tables[tableName].entries, entry)
	r.entryCount++

	if r.entryCount >= r.batchSize {
		if err := r.flushLocked(); err != nil {
			panic(err)
		}
	}
}

// RecordLayer buffers the result of a layer.
func (r *Recorder) RecordLayer(res LayerResult) {
	b := res.Bandwidth
	d := res.Detail

	r.insert(LayerTable, layerEntry{
		LayerID:           res.LayerID,
		Name:              res.Name,
		StartCycle:        res.StartCycle,
		TotalCycles:       res.Compute.TotalCycles,
		StallCycles:       res.Compute.StallCycles,
		OverallUtil:       res.Compute.OverallUtil,
		MappingEfficiency: res.Compute.MappingEfficiency,
		ComputeUtil:       res.Compute.ComputeUtil,
		IfmapSRAMBW:       b.IfmapSRAM,
		FilterSRAMBW:      b.FilterSRAM,
		OfmapSRAMBW:       b.OfmapSRAM,
		IfmapDRAMBW:       b.IfmapDRAM,
		FilterDRAMBW:      b.FilterDRAM,
		OfmapDRAMBW:       b.OfmapDRAM,
		IfmapDRAMReads:    d.IfmapDRAM.Count,
		FilterDRAMReads:   d.FilterDRAM.Count,
		OfmapDRAMWrites:   d.OfmapDRAM.Count,
		SimulatedTime:     res.SimulatedTime,
		WallTimeNS:        res.Host.WallTime.Nanoseconds(),
		RSSBytes:          int64(res.Host.RSSBytes),
	})
}

// Func records buffer fills and drains. The recorder can be attached to any
// buffer directly. The operand is then unknown and the layer is -1.
func (r *Recorder) Func(ctx sim.HookCtx) {
	r.recordAccess(-1, "", ctx)
}

// A BufferNamer tells which operand a buffer serves.
type BufferNamer interface {
	BufferName(domain sim.Hookable) string
}

// LayerHook returns a hook that records the DRAM traffic of one layer and
// names the buffers through the namer.
func (r *Recorder) LayerHook(layerID int, namer BufferNamer) sim.Hook {
	return &layerHook{recorder: r, layerID: layerID, namer: namer}
}

type layerHook struct {
	recorder *Recorder
	layerID  int
	namer    BufferNamer
}

func (h *layerHook) Func(ctx sim.HookCtx) {
	h.recorder.recordAccess(h.layerID, h.namer.BufferName(ctx.Domain), ctx)
}

func (r *Recorder) recordAccess(layerID int, buffer string, ctx sim.HookCtx) {
	var kind string

	switch ctx.Pos {
	case memory.HookPosBufferFill:
		kind = "fill"
	case memory.HookPosBufferDrain:
		kind = "drain"
	default:
		return
	}

	access := ctx.Item.(memory.BufferFill)

	r.insert(AccessTable, accessEntry{
		LayerID: layerID,
		Buffer:  buffer,
		Kind:    kind,
		Cycle:   access.Cycle,
		Addrs:   formatAddrs(access.Addrs),
	})
}

func formatAddrs(addrs []int64) string {
	var sb strings.Builder

	first := true
	for _, a := range addrs {
		if a == mat.Null {
			continue
		}

		if !first {
			sb.WriteByte(' ')
		}

		fmt.Fprintf(&sb, "%d", a)
		first = false
	}

	return sb.String()
}

// Flush writes all buffered entries.
func (r *Recorder) Flush() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if r.entryCount == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, name := range r.tableOrder {
		t := r.tables[name]
		if len(t.entries) == 0 {
			continue
		}

		if err := insertAll(tx, name, t.entries); err != nil {
			_ = tx.Rollback()
			return err
		}

		t.entries = nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	r.entryCount = 0

	return nil
}

func insertAll(tx *sql.Tx, name string, entries []any) error {
	marks := structs.Names(entries[0])
	for i := range marks {
		marks[i] = "?"
	}

	query := "INSERT INTO " + name + " VALUES (" + strings.Join(marks, ", ") + ")"

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(structs.Values(e)...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", name, err)
		}
	}

	return nil
}

// Close flushes the recorder and closes the database.
func (r *Recorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}

	return r.DB.Close()
}
