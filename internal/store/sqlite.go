package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"helios/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ OrderStore = (*SQLiteStore)(nil)
var _ FillStore = (*SQLiteStore)(nil)
var _ PositionStore = (*SQLiteStore)(nil)

// SQLiteStore implements OrderStore, FillStore, and PositionStore backed by
// a SQLite database. Timestamps are stored as Unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id         TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	order_type       TEXT NOT NULL,
	intent           TEXT NOT NULL DEFAULT '',
	quantity_ordered REAL NOT NULL,
	quantity_filled  REAL NOT NULL DEFAULT 0,
	limit_price      REAL,
	status           TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	fill_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id   TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT NOT NULL,
	quantity   REAL NOT NULL,
	price      REAL NOT NULL,
	commission REAL NOT NULL DEFAULT 0,
	filled_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_order ON fills(order_id);

CREATE TABLE IF NOT EXISTS positions (
	position_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol           TEXT NOT NULL,
	status           TEXT NOT NULL,
	side             TEXT NOT NULL,
	quantity         REAL NOT NULL,
	open_price       REAL NOT NULL,
	open_time        INTEGER NOT NULL,
	take_profit      REAL,
	stop_loss        REAL,
	exit_by          INTEGER,
	close_time       INTEGER,
	close_price      REAL,
	commission_close REAL
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, runs the
// schema migration, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// CreateOrder inserts a new order row keyed by its broker-assigned ID.
func (s *SQLiteStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	if order.ID == "" {
		return fmt.Errorf("create order: broker order ID is required")
	}

	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (order_id, symbol, side, order_type, intent,
			quantity_ordered, quantity_filled, limit_price, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Symbol, string(order.Direction), string(order.Type), string(order.Intent),
		order.Qty, order.FilledQty, nullFloat(order.LimitPrice), string(order.Status),
		order.CreatedAt.UnixMilli(), order.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", order.ID, err)
	}
	return nil
}

// GetOrder retrieves a single order by its broker-assigned ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_id, symbol, side, order_type, intent, quantity_ordered,
			quantity_filled, limit_price, status, created_at, updated_at
		FROM orders WHERE order_id = ?`, id)

	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading order %s: %w", id, err)
	}
	return order, nil
}

// ListOrdersBySymbol returns all orders for a symbol, oldest first.
func (s *SQLiteStore) ListOrdersBySymbol(ctx context.Context, symbol string) ([]domain.Order, error) {
	return s.listOrders(ctx, `
		SELECT order_id, symbol, side, order_type, intent, quantity_ordered,
			quantity_filled, limit_price, status, created_at, updated_at
		FROM orders WHERE symbol = ? ORDER BY created_at`, symbol)
}

// ListOrdersByStatus returns all orders in the given status, oldest first.
func (s *SQLiteStore) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return s.listOrders(ctx, `
		SELECT order_id, symbol, side, order_type, intent, quantity_ordered,
			quantity_filled, limit_price, status, created_at, updated_at
		FROM orders WHERE status = ? ORDER BY created_at`, string(status))
}

// UpdateOrderStatus sets the order's status and cumulative filled quantity.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, filledQty float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, quantity_filled = ?, updated_at = ?
		WHERE order_id = ?`,
		string(status), filledQty, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) listOrders(ctx context.Context, query string, arg any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// ---------------------------------------------------------------------------
// FillStore implementation
// ---------------------------------------------------------------------------

// CreateFill inserts a new fill row and returns its assigned ID.
func (s *SQLiteStore) CreateFill(ctx context.Context, fill *domain.Fill) (int64, error) {
	if err := fill.Validate(); err != nil {
		return 0, err
	}

	filledAt := fill.FilledAt
	if filledAt.IsZero() {
		filledAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (order_id, symbol, side, quantity, price, commission, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID, fill.Symbol, string(fill.Side), fill.Qty, fill.Price, fill.Commission,
		filledAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting fill for order %s: %w", fill.OrderID, err)
	}
	return res.LastInsertId()
}

// ListFillsByOrder returns all fills recorded against a broker order ID.
func (s *SQLiteStore) ListFillsByOrder(ctx context.Context, orderID string) ([]domain.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, symbol, side, quantity, price, commission, filled_at
		FROM fills WHERE order_id = ? ORDER BY filled_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing fills for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		var filledAt int64
		if err := rows.Scan(&f.OrderID, &f.Symbol, &side, &f.Qty, &f.Price, &f.Commission, &filledAt); err != nil {
			return nil, fmt.Errorf("scanning fill: %w", err)
		}
		f.Side = domain.Direction(side)
		f.FilledAt = time.UnixMilli(filledAt).UTC()
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// ---------------------------------------------------------------------------
// PositionStore implementation
// ---------------------------------------------------------------------------

// CreatePosition inserts a new position row and returns it with the
// store-assigned ID filled in.
func (s *SQLiteStore) CreatePosition(ctx context.Context, pos *domain.Position) (*domain.Position, error) {
	if pos.Status == "" {
		pos.Status = domain.PositionStatusOpen
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (symbol, status, side, quantity, open_price, open_time,
			take_profit, stop_loss, exit_by, close_time, close_price, commission_close)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pos.Symbol, string(pos.Status), string(pos.Side), pos.Qty, pos.EntryPrice,
		pos.EntryTime.UnixMilli(),
		nullFloat(pos.TakeProfit), nullFloat(pos.StopLoss), nullTime(pos.ExitBy),
		nullTime(pos.CloseTime), nullFloat(pos.ClosePrice), nullFloat(pos.CommissionClose),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting position %s: %w", pos.Symbol, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading position id: %w", err)
	}

	created := *pos
	created.ID = id
	return &created, nil
}

// UpdatePosition applies a partial update to the position with the given ID.
func (s *SQLiteStore) UpdatePosition(ctx context.Context, id int64, upd PositionUpdate) error {
	var sets []string
	var args []any

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.TakeProfit != nil {
		sets = append(sets, "take_profit = ?")
		args = append(args, *upd.TakeProfit)
	}
	if upd.StopLoss != nil {
		sets = append(sets, "stop_loss = ?")
		args = append(args, *upd.StopLoss)
	}
	if upd.ExitBy != nil {
		sets = append(sets, "exit_by = ?")
		args = append(args, upd.ExitBy.UnixMilli())
	}
	if upd.CloseTime != nil {
		sets = append(sets, "close_time = ?")
		args = append(args, upd.CloseTime.UnixMilli())
	}
	if upd.ClosePrice != nil {
		sets = append(sets, "close_price = ?")
		args = append(args, *upd.ClosePrice)
	}
	if upd.CommissionClose != nil {
		sets = append(sets, "commission_close = ?")
		args = append(args, *upd.CommissionClose)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE positions SET " + joinSets(sets) + " WHERE position_id = ?"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating position %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("position %d not found", id)
	}
	return nil
}

// GetPosition retrieves a position by its store-assigned ID.
func (s *SQLiteStore) GetPosition(ctx context.Context, id int64) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT position_id, symbol, status, side, quantity, open_price, open_time,
			take_profit, stop_loss, exit_by, close_time, close_price, commission_close
		FROM positions WHERE position_id = ?`, id)

	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("position %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading position %d: %w", id, err)
	}
	return pos, nil
}

// GetOpenPositions returns all positions with status OPEN.
func (s *SQLiteStore) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.ListPositionsByStatus(ctx, domain.PositionStatusOpen)
}

// ListPositionsBySymbol returns all positions for a symbol, oldest first.
func (s *SQLiteStore) ListPositionsBySymbol(ctx context.Context, symbol string) ([]domain.Position, error) {
	return s.listPositions(ctx, `
		SELECT position_id, symbol, status, side, quantity, open_price, open_time,
			take_profit, stop_loss, exit_by, close_time, close_price, commission_close
		FROM positions WHERE symbol = ? ORDER BY open_time`, symbol)
}

// ListPositionsByStatus returns all positions in the given status.
func (s *SQLiteStore) ListPositionsByStatus(ctx context.Context, status domain.PositionStatus) ([]domain.Position, error) {
	return s.listPositions(ctx, `
		SELECT position_id, symbol, status, side, quantity, open_price, open_time,
			take_profit, stop_loss, exit_by, close_time, close_price, commission_close
		FROM positions WHERE status = ? ORDER BY open_time`, string(status))
}

func (s *SQLiteStore) listPositions(ctx context.Context, query string, arg any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		positions = append(positions, *pos)
	}
	return positions, rows.Err()
}

// ---------------------------------------------------------------------------
// Scan helpers
// ---------------------------------------------------------------------------

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc scanner) (*domain.Order, error) {
	var o domain.Order
	var side, otype, intent, status string
	var limitPrice sql.NullFloat64
	var createdAt, updatedAt int64

	err := sc.Scan(&o.ID, &o.Symbol, &side, &otype, &intent, &o.Qty,
		&o.FilledQty, &limitPrice, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	o.Direction = domain.Direction(side)
	o.Type = domain.OrderType(otype)
	o.Intent = domain.OrderIntent(intent)
	o.Status = domain.OrderStatus(status)
	if limitPrice.Valid {
		o.LimitPrice = &limitPrice.Float64
	}
	o.CreatedAt = time.UnixMilli(createdAt).UTC()
	o.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &o, nil
}

func scanPosition(sc scanner) (*domain.Position, error) {
	var p domain.Position
	var status, side string
	var openTime int64
	var takeProfit, stopLoss, closePrice, commissionClose sql.NullFloat64
	var exitBy, closeTime sql.NullInt64

	err := sc.Scan(&p.ID, &p.Symbol, &status, &side, &p.Qty, &p.EntryPrice, &openTime,
		&takeProfit, &stopLoss, &exitBy, &closeTime, &closePrice, &commissionClose)
	if err != nil {
		return nil, err
	}

	p.Status = domain.PositionStatus(status)
	p.Side = domain.Direction(side)
	p.EntryTime = time.UnixMilli(openTime).UTC()
	if takeProfit.Valid {
		p.TakeProfit = &takeProfit.Float64
	}
	if stopLoss.Valid {
		p.StopLoss = &stopLoss.Float64
	}
	if exitBy.Valid {
		t := time.UnixMilli(exitBy.Int64).UTC()
		p.ExitBy = &t
	}
	if closeTime.Valid {
		t := time.UnixMilli(closeTime.Int64).UTC()
		p.CloseTime = &t
	}
	if closePrice.Valid {
		p.ClosePrice = &closePrice.Float64
	}
	if commissionClose.Valid {
		p.CommissionClose = &commissionClose.Float64
	}
	return &p, nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
