package store

import (
    "context"
    "database/sql"
    "embed"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "dispatchmap/internal/model"
    "dispatchmap/internal/obs"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
    db  *sql.DB
    now func() time.Time
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, fmt.Errorf("open postgres: %w", err)
    }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(10)
    db.SetConnMaxLifetime(30 * time.Minute)
    if err := db.Ping(); err != nil {
        return nil, fmt.Errorf("ping postgres: %w", err)
    }
    return &Postgres{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) (err error) {
    defer obs.Time(ctx, "store.migrate")(&err)
    names, err := fs.Glob(migrations, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, name := range names {
        b, err := migrations.ReadFile(name)
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", name, err)
        }
    }
    return nil
}

const orderCols = `o.id::text, o.lat, o.lng, o.product_name, o.complexity, COALESCE(w.delivery_id::text, ''),
    o.status, o.priority, o.amount, o.customer, o.created_at, o.updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanOrder(r rowScanner) (model.Order, error) {
    var o model.Order
    err := r.Scan(&o.ID, &o.Location.Lat, &o.Location.Lng, &o.Product.Name, &o.Product.Complexity, &o.DeliveryID,
        &o.Status, &o.Priority, &o.Amount, &o.Customer, &o.CreatedAt, &o.UpdatedAt)
    return o, err
}

func (p *Postgres) GetOrders(ctx context.Context) ([]model.Order, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders o LEFT JOIN waypoints w ON w.order_id = o.id ORDER BY o.created_at, o.id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Order{}
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    return out, rows.Err()
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
    return p.getOrder(ctx, p.db, id)
}

type querier interface {
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Postgres) getOrder(ctx context.Context, q querier, id string) (model.Order, error) {
    if !validUUID(id) { return model.Order{}, ErrNotFound }
    o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders o LEFT JOIN waypoints w ON w.order_id = o.id WHERE o.id = $1`, id))
    if errors.Is(err, sql.ErrNoRows) { return model.Order{}, ErrNotFound }
    return o, err
}

func (p *Postgres) UpdateOrder(ctx context.Context, id string, patch model.OrderPatch) (*model.Order, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func(){ _ = tx.Rollback() }()

    o, err := p.getOrder(ctx, tx, id)
    if errors.Is(err, ErrNotFound) { return nil, nil }
    if err != nil { return nil, err }
    if err := applyPatch(&o, patch, p.now()); err != nil { return nil, err }
    _, err = tx.ExecContext(ctx, `UPDATE orders SET lat=$1, lng=$2, product_name=$3, complexity=$4, status=$5, priority=$6, amount=$7, customer=$8, updated_at=$9 WHERE id=$10`,
        o.Location.Lat, o.Location.Lng, o.Product.Name, o.Product.Complexity, o.Status, o.Priority, o.Amount, o.Customer, o.UpdatedAt, id)
    if err != nil { return nil, err }
    if err := tx.Commit(); err != nil { return nil, err }
    return &o, nil
}

func (p *Postgres) CreateOrders(ctx context.Context, orders []model.OrderIn) ([]model.Order, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return nil, err }
    defer func(){ _ = tx.Rollback() }()

    now := p.now()
    out := make([]model.Order, 0, len(orders))
    for i, in := range orders {
        o, err := newOrder(uuid.New().String(), in, now)
        if err != nil { return nil, fmt.Errorf("order %d: %w", i, err) }
        _, err = tx.ExecContext(ctx, `INSERT INTO orders (id, lat, lng, product_name, complexity, status, priority, amount, customer, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)`,
            o.ID, o.Location.Lat, o.Location.Lng, o.Product.Name, o.Product.Complexity, o.Status, o.Priority, o.Amount, o.Customer, now)
        if err != nil { return nil, err }
        out = append(out, o)
    }
    if err := tx.Commit(); err != nil { return nil, err }
    return out, nil
}

func (p *Postgres) GetDeliveries(ctx context.Context) ([]model.Delivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, name, driver, status, created_at, updated_at FROM deliveries ORDER BY created_at, id`)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Delivery{}
    idx := map[string]int{}
    for rows.Next() {
        var d model.Delivery
        if err := rows.Scan(&d.ID, &d.Name, &d.Driver, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil { return nil, err }
        d.OrderIDs = []string{}
        idx[d.ID] = len(out)
        out = append(out, d)
    }
    if err := rows.Err(); err != nil { return nil, err }

    wrows, err := p.db.QueryContext(ctx, `SELECT delivery_id::text, order_id::text FROM waypoints ORDER BY delivery_id, seq`)
    if err != nil { return nil, err }
    defer wrows.Close()
    for wrows.Next() {
        var did, oid string
        if err := wrows.Scan(&did, &oid); err != nil { return nil, err }
        if i, ok := idx[did]; ok { out[i].OrderIDs = append(out[i].OrderIDs, oid) }
    }
    return out, wrows.Err()
}

func (p *Postgres) GetDelivery(ctx context.Context, id string) (model.Delivery, error) {
    tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
    if err != nil { return model.Delivery{}, err }
    defer func(){ _ = tx.Rollback() }()
    d, err := p.loadDelivery(ctx, tx, id, false)
    if err != nil { return model.Delivery{}, err }
    return d, tx.Commit()
}

// loadDelivery reads a delivery and its stop ids inside tx, optionally locking the row.
func (p *Postgres) loadDelivery(ctx context.Context, tx *sql.Tx, id string, forUpdate bool) (model.Delivery, error) {
    if !validUUID(id) { return model.Delivery{}, fmt.Errorf("delivery %s: %w", id, ErrNotFound) }
    q := `SELECT id::text, name, driver, status, created_at, updated_at FROM deliveries WHERE id = $1`
    if forUpdate { q += ` FOR UPDATE` }
    var d model.Delivery
    err := tx.QueryRowContext(ctx, q, id).Scan(&d.ID, &d.Name, &d.Driver, &d.Status, &d.CreatedAt, &d.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) { return model.Delivery{}, fmt.Errorf("delivery %s: %w", id, ErrNotFound) }
    if err != nil { return model.Delivery{}, err }
    rows, err := tx.QueryContext(ctx, `SELECT order_id::text FROM waypoints WHERE delivery_id = $1 ORDER BY seq`, id)
    if err != nil { return model.Delivery{}, err }
    defer rows.Close()
    d.OrderIDs = []string{}
    for rows.Next() {
        var oid string
        if err := rows.Scan(&oid); err != nil { return model.Delivery{}, err }
        d.OrderIDs = append(d.OrderIDs, oid)
    }
    return d, rows.Err()
}

// writeStops rewrites the waypoint rows of d so seq matches the OrderIDs index.
func (p *Postgres) writeStops(ctx context.Context, tx *sql.Tx, d model.Delivery) error {
    if _, err := tx.ExecContext(ctx, `DELETE FROM waypoints WHERE delivery_id = $1`, d.ID); err != nil { return err }
    for i, oid := range d.OrderIDs {
        if _, err := tx.ExecContext(ctx, `INSERT INTO waypoints (delivery_id, order_id, seq) VALUES ($1,$2,$3)`, d.ID, oid, i); err != nil {
            return err
        }
    }
    _, err := tx.ExecContext(ctx, `UPDATE deliveries SET updated_at=$1 WHERE id=$2`, d.UpdatedAt, d.ID)
    return err
}

// checkPoolOrder returns ErrNotFound or ErrOrderAssigned unless orderID is an unassigned order.
func (p *Postgres) checkPoolOrder(ctx context.Context, tx *sql.Tx, orderID string) error {
    o, err := p.getOrder(ctx, tx, orderID)
    if errors.Is(err, ErrNotFound) { return fmt.Errorf("order %s: %w", orderID, ErrNotFound) }
    if err != nil { return err }
    if !o.InPool() { return fmt.Errorf("order %s in %s: %w", orderID, o.DeliveryID, ErrOrderAssigned) }
    return nil
}

func (p *Postgres) CreateDelivery(ctx context.Context, in model.DeliveryIn) (model.Delivery, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Delivery{}, err }
    defer func(){ _ = tx.Rollback() }()

    seen := map[string]bool{}
    for _, oid := range in.OrderIDs {
        if err := p.checkPoolOrder(ctx, tx, oid); err != nil { return model.Delivery{}, err }
        if seen[oid] { return model.Delivery{}, fmt.Errorf("order %s: %w", oid, ErrOrderAssigned) }
        seen[oid] = true
    }
    now := p.now()
    d := model.Delivery{ID: uuid.New().String(), Name: in.Name, Driver: in.Driver, Status: model.DeliveryPlanned, OrderIDs: append([]string{}, in.OrderIDs...), CreatedAt: now, UpdatedAt: now}
    _, err = tx.ExecContext(ctx, `INSERT INTO deliveries (id, name, driver, status, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$5)`, d.ID, d.Name, d.Driver, d.Status, now)
    if err != nil { return model.Delivery{}, err }
    if err := p.writeStops(ctx, tx, d); err != nil { return model.Delivery{}, err }
    if err := tx.Commit(); err != nil { return model.Delivery{}, err }
    return d, nil
}

func (p *Postgres) AddOrderToDelivery(ctx context.Context, deliveryID, orderID string, atIndex *int) (model.Delivery, error) {
    return p.mutateStops(ctx, deliveryID, func(tx *sql.Tx, d *model.Delivery) error {
        if err := p.checkPoolOrder(ctx, tx, orderID); err != nil { return err }
        ids, err := insertAt(d.OrderIDs, orderID, atIndex)
        if err != nil { return err }
        d.OrderIDs = ids
        return nil
    })
}

func (p *Postgres) RemoveOrderFromDelivery(ctx context.Context, deliveryID, orderID string) (model.Delivery, error) {
    return p.mutateStops(ctx, deliveryID, func(tx *sql.Tx, d *model.Delivery) error {
        out := make([]string, 0, len(d.OrderIDs))
        for _, id := range d.OrderIDs { if id != orderID { out = append(out, id) } }
        if len(out) == len(d.OrderIDs) { return fmt.Errorf("order %s in delivery %s: %w", orderID, deliveryID, ErrNotFound) }
        d.OrderIDs = out
        return nil
    })
}

func (p *Postgres) ReorderDeliveryOrders(ctx context.Context, deliveryID string, fromIndex, toIndex int) (model.Delivery, error) {
    return p.mutateStops(ctx, deliveryID, func(tx *sql.Tx, d *model.Delivery) error {
        ids, err := moveIndex(d.OrderIDs, fromIndex, toIndex)
        if err != nil { return err }
        d.OrderIDs = ids
        return nil
    })
}

// mutateStops locks the delivery, lets fn edit its stop list and writes the result in one transaction.
func (p *Postgres) mutateStops(ctx context.Context, deliveryID string, fn func(tx *sql.Tx, d *model.Delivery) error) (model.Delivery, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return model.Delivery{}, err }
    defer func(){ _ = tx.Rollback() }()

    d, err := p.loadDelivery(ctx, tx, deliveryID, true)
    if err != nil { return model.Delivery{}, err }
    if err := fn(tx, &d); err != nil { return model.Delivery{}, err }
    d.UpdatedAt = p.now()
    if err := p.writeStops(ctx, tx, d); err != nil { return model.Delivery{}, err }
    if err := tx.Commit(); err != nil { return model.Delivery{}, err }
    return d, nil
}

func (p *Postgres) Waypoints(ctx context.Context, deliveryID string) ([]model.Waypoint, error) {
    if !validUUID(deliveryID) { return nil, ErrNotFound }
    var exists bool
    if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM deliveries WHERE id = $1)`, deliveryID).Scan(&exists); err != nil { return nil, err }
    if !exists { return nil, ErrNotFound }
    rows, err := p.db.QueryContext(ctx, `SELECT delivery_id::text, order_id::text, seq FROM waypoints WHERE delivery_id = $1 ORDER BY seq`, deliveryID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Waypoint{}
    for rows.Next() {
        var w model.Waypoint
        if err := rows.Scan(&w.DeliveryID, &w.OrderID, &w.Seq); err != nil { return nil, err }
        out = append(out, w)
    }
    return out, rows.Err()
}

func validUUID(s string) bool { _, err := uuid.Parse(s); return err == nil }
