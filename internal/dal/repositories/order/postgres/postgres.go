package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shopstack/checkout/internal/dal/postgres"
	"github.com/shopstack/checkout/internal/service/models/currency"
	"github.com/shopstack/checkout/internal/service/models/lineitem"
	"github.com/shopstack/checkout/internal/service/models/order"
)

// OrderDal represents order data access layer model
type OrderDal struct {
	Id                 string
	OwnerId            string
	TotalPriceCents    int64
	TotalPriceCurrency string
	PaymentState       string
	GatewayIntentId    *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ToModel converts OrderDal to service layer Order model
func (o *OrderDal) ToModel() (*order.Order, error) {
	cur, err := currency.ParseCurrency(o.TotalPriceCurrency)
	if err != nil {
		return nil, err
	}
	state, err := order.ParsePaymentState(o.PaymentState)
	if err != nil {
		return nil, err
	}

	intentID := ""
	if o.GatewayIntentId != nil {
		intentID = *o.GatewayIntentId
	}

	return &order.Order{
		ID:                 o.Id,
		OwnerID:            o.OwnerId,
		TotalPriceCents:    o.TotalPriceCents,
		TotalPriceCurrency: cur,
		PaymentState:       state,
		GatewayIntentID:    intentID,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		LineItems:          []lineitem.LineItem{}, // Will be populated separately
	}, nil
}

var orderColumns = []string{
	"id",
	"owner_id",
	"total_price_cents",
	"total_price_currency",
	"payment_state",
	"gateway_intent_id",
	"created_at",
	"updated_at",
}

// OrderRepository implements the order store for PostgreSQL. Mutations on the
// same order id are serialized by row-level conditional updates; different
// orders never contend.
type OrderRepository struct {
	client *postgres.Client
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(client *postgres.Client) *OrderRepository {
	return &OrderRepository{
		client: client,
	}
}

// CreatePending inserts a new pending order and its line items in one
// transaction.
func (r *OrderRepository) CreatePending(
	ctx context.Context,
	ownerID string,
	items []lineitem.LineItem,
	totalPriceCents int64,
) (order.Order, error) {
	if ownerID == "" || len(items) == 0 || totalPriceCents < 0 {
		return order.Order{}, order.ErrValidation
	}

	now := time.Now().UTC()
	id := uuid.NewString()

	tx, err := r.client.Pool().Begin(ctx)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := sq.Insert("orders").
		Columns(
			"id",
			"owner_id",
			"total_price_cents",
			"total_price_currency",
			"payment_state",
			"created_at",
			"updated_at",
		).
		Values(
			id,
			ownerID,
			totalPriceCents,
			currency.CurrencyUSD,
			order.PaymentStatePending,
			now,
			now,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	itemsBuilder := sq.Insert("order_line_items").
		Columns("order_id", "product_ref", "quantity", "unit_price_cents").
		PlaceholderFormat(sq.Dollar)
	for _, item := range items {
		itemsBuilder = itemsBuilder.Values(id, item.ProductRef, item.Quantity, item.UnitPriceCents)
	}

	query, args, err = itemsBuilder.ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert line items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return order.Order{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return order.Order{
		ID:                 id,
		OwnerID:            ownerID,
		LineItems:          items,
		TotalPriceCents:    totalPriceCents,
		TotalPriceCurrency: currency.CurrencyUSD,
		PaymentState:       order.PaymentStatePending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// AttachGatewayIntent binds the gateway intent id via compare-and-set on the
// unset column. Re-attaching the same intent id is a no-op.
func (r *OrderRepository) AttachGatewayIntent(
	ctx context.Context,
	orderID, intentID string,
) (order.Order, error) {
	if orderID == "" || intentID == "" {
		return order.Order{}, order.ErrValidation
	}

	query, args, err := sq.Update("orders").
		Set("gateway_intent_id", intentID).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": orderID}).
		Where(sq.Expr("gateway_intent_id IS NULL")).
		Suffix("RETURNING " + returningColumns()).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build update query: %w", err)
	}

	updated, err := r.scanOne(ctx, query, args)
	if err == nil {
		return r.withLineItems(ctx, updated)
	}
	if !errors.Is(err, order.ErrNotFound) {
		return order.Order{}, err
	}

	// No row matched: either the order is absent or the intent is already set.
	current, err := r.GetByID(ctx, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if current.GatewayIntentID == intentID {
		return current, nil
	}

	return order.Order{}, order.ErrAlreadyAttached
}

// TransitionPaymentState applies a state-conditioned update so that exactly one
// terminal transition can ever commit per order. Already-terminal orders and
// repeated deliveries resolve to a no-op returning the current row.
func (r *OrderRepository) TransitionPaymentState(
	ctx context.Context,
	orderID string,
	target order.PaymentState,
) (order.Order, error) {
	if _, err := order.ParsePaymentState(target.String()); err != nil {
		return order.Order{}, order.ErrValidation
	}

	if !target.IsTerminal() {
		// pending -> pending asks for nothing; report the current row.
		return r.GetByID(ctx, orderID)
	}

	query, args, err := sq.Update("orders").
		Set("payment_state", target).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": orderID}).
		Where(sq.Eq{"payment_state": order.PaymentStatePending}).
		Suffix("RETURNING " + returningColumns()).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build update query: %w", err)
	}

	updated, err := r.scanOne(ctx, query, args)
	if err == nil {
		return r.withLineItems(ctx, updated)
	}
	if !errors.Is(err, order.ErrNotFound) {
		return order.Order{}, err
	}

	// No row matched: the order is absent or already terminal.
	return r.GetByID(ctx, orderID)
}

// FindByGatewayIntentID resolves an order from its gateway correlation id.
func (r *OrderRepository) FindByGatewayIntentID(
	ctx context.Context,
	intentID string,
) (order.Order, error) {
	if intentID == "" {
		return order.Order{}, order.ErrValidation
	}

	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"gateway_intent_id": intentID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build select query: %w", err)
	}

	found, err := r.scanOne(ctx, query, args)
	if err != nil {
		return order.Order{}, err
	}

	return r.withLineItems(ctx, found)
}

// GetByID returns a single order with its line items.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (order.Order, error) {
	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": orderID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build select query: %w", err)
	}

	found, err := r.scanOne(ctx, query, args)
	if err != nil {
		return order.Order{}, err
	}

	return r.withLineItems(ctx, found)
}

// Query retrieves orders based on filter criteria.
func (r *OrderRepository) Query(
	ctx context.Context,
	filter *order.QueryOrdersModel,
) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if len(filter.Ids) > 0 {
		builder = builder.Where(sq.Eq{"id": filter.Ids})
	}
	if len(filter.OwnerIds) > 0 {
		builder = builder.Where(sq.Eq{"owner_id": filter.OwnerIds})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	result := []order.Order{}
	for rows.Next() {
		model, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	for i := range result {
		items, err := r.lineItems(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].LineItems = items
	}

	return result, nil
}

func (r *OrderRepository) scanOne(
	ctx context.Context,
	query string,
	args []interface{},
) (order.Order, error) {
	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to query order: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return order.Order{}, fmt.Errorf("rows iteration error: %w", err)
		}

		return order.Order{}, order.ErrNotFound
	}

	model, err := scanOrder(rows)
	if err != nil {
		return order.Order{}, err
	}

	return *model, nil
}

func scanOrder(rows pgx.Rows) (*order.Order, error) {
	dal := OrderDal{}
	err := rows.Scan(
		&dal.Id,
		&dal.OwnerId,
		&dal.TotalPriceCents,
		&dal.TotalPriceCurrency,
		&dal.PaymentState,
		&dal.GatewayIntentId,
		&dal.CreatedAt,
		&dal.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	model, err := dal.ToModel()
	if err != nil {
		return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
	}

	return model, nil
}

func (r *OrderRepository) withLineItems(ctx context.Context, o order.Order) (order.Order, error) {
	items, err := r.lineItems(ctx, o.ID)
	if err != nil {
		return order.Order{}, err
	}
	o.LineItems = items

	return o, nil
}

func (r *OrderRepository) lineItems(
	ctx context.Context,
	orderID string,
) ([]lineitem.LineItem, error) {
	query, args, err := sq.Select("product_ref", "quantity", "unit_price_cents").
		From("order_line_items").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	items := []lineitem.LineItem{}
	for rows.Next() {
		var item lineitem.LineItem
		if err := rows.Scan(&item.ProductRef, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return items, nil
}

func returningColumns() string {
	return "id, owner_id, total_price_cents, total_price_currency, payment_state, gateway_intent_id, created_at, updated_at"
}
