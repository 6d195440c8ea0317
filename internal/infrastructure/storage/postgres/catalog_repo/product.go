// Package catalog_repo provides the PostgreSQL product repository.
package catalog_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"templestock/internal/core/apperror"
	"templestock/internal/core/id"
	"templestock/internal/domain/product"
	"templestock/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

var productColumns = postgres.ExtractDBColumns[product.Product]()

// Compile-time check.
var _ product.Repository = (*ProductRepo)(nil)

// ProductRepo implements product.Repository. Stock changes are single
// conditional UPDATE statements, so the check and the write cannot interleave
// with another transaction.
type ProductRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewProductRepo creates a product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get implements product.Store.
func (r *ProductRepo) Get(ctx context.Context, tenantID string, productID id.ID) (*product.Product, error) {
	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p product.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, fmt.Errorf("get product: %w", postgres.ClassifyError(err))
	}
	return &p, nil
}

// GetMany implements product.Store. Rows are locked in id order.
func (r *ProductRepo) GetMany(ctx context.Context, tenantID string, ids []id.ID) (map[id.ID]*product.Product, error) {
	out := make(map[id.ID]*product.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sql, args, err := r.getManyQuery(tenantID, ids).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*product.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("lock products: %w", postgres.ClassifyError(err))
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (r *ProductRepo) getManyQuery(tenantID string, ids []id.ID) squirrel.SelectBuilder {
	return r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": ids, "tenant_id": tenantID}).
		OrderBy("id").
		Suffix("FOR UPDATE")
}

// AdjustStock implements product.Store.
func (r *ProductRepo) AdjustStock(ctx context.Context, tenantID string, productID id.ID, delta int64) (int64, error) {
	sql, args, err := r.adjustQuery(tenantID, productID, delta).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	var stock int64
	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjust stock: %w", postgres.ClassifyError(err))
	}

	// No row: either the product is missing or the guard rejected the delta.
	p, err := r.Get(ctx, tenantID, productID)
	if err != nil {
		return 0, err
	}
	return p.CurrentStock, apperror.NewInsufficientStock(productID.String(), -delta, p.CurrentStock)
}

func (r *ProductRepo) adjustQuery(tenantID string, productID id.ID, delta int64) squirrel.UpdateBuilder {
	return r.builder.Update(productsTable).
		Set("current_stock", squirrel.Expr("current_stock + ?", delta)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": productID, "tenant_id": tenantID}).
		Where("current_stock + ? >= 0", delta).
		Suffix("RETURNING current_stock")
}

// Reserve implements product.Store.
func (r *ProductRepo) Reserve(ctx context.Context, tenantID string, productID id.ID, qty int64) (bool, error) {
	sql, args, err := r.reserveQuery(tenantID, productID, qty).ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("reserve stock: %w", postgres.ClassifyError(err))
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, tenantID, productID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *ProductRepo) reserveQuery(tenantID string, productID id.ID, qty int64) squirrel.UpdateBuilder {
	return r.builder.Update(productsTable).
		Set("current_stock", squirrel.Expr("current_stock - ?", qty)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": productID, "tenant_id": tenantID}).
		Where("current_stock >= ?", qty)
}

// SetStock implements product.Store.
func (r *ProductRepo) SetStock(ctx context.Context, tenantID string, productID id.ID, stock int64) error {
	sql, args, err := r.builder.Update(productsTable).
		Set("current_stock", stock).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": productID, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("set stock: %w", postgres.ClassifyError(err))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID.String())
	}
	return nil
}

// Create implements product.Repository. New products always start at zero stock.
func (r *ProductRepo) Create(ctx context.Context, p *product.Product) error {
	data := postgres.StructToMap(p)
	data["current_stock"] = int64(0)

	sql, args, err := r.builder.Insert(productsTable).SetMap(data).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		err = postgres.ClassifyError(err)
		if apperror.Is(err, apperror.CodeDuplicate) {
			return apperror.NewDuplicate("product", "name", p.Name).WithCause(err)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	p.CurrentStock = 0
	return nil
}

// Update implements product.Repository. current_stock is never written here;
// the stored value is read back into p.
func (r *ProductRepo) Update(ctx context.Context, p *product.Product) error {
	sql, args, err := r.updateQuery(p).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	err = r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&p.CurrentStock)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound("product", p.ID.String())
	}
	if err != nil {
		err = postgres.ClassifyError(err)
		if apperror.Is(err, apperror.CodeDuplicate) {
			return apperror.NewDuplicate("product", "name", p.Name).WithCause(err)
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *ProductRepo) updateQuery(p *product.Product) squirrel.UpdateBuilder {
	return r.builder.Update(productsTable).
		Set("name", p.Name).
		Set("category", p.Category).
		Set("unit_of_measure", p.UnitOfMeasure).
		Set("min_quantity", p.MinQuantity).
		Set("warehouse_rack", p.WarehouseRack).
		Set("status", p.Status).
		Set("updated_at", p.UpdatedAt).
		Where(squirrel.Eq{"id": p.ID, "tenant_id": p.TenantID}).
		Suffix("RETURNING current_stock")
}

// ListIDs implements product.Repository.
func (r *ProductRepo) ListIDs(ctx context.Context, tenantID string) ([]id.ID, error) {
	sql, args, err := r.builder.Select("id").
		From(productsTable).
		Where(squirrel.Eq{"tenant_id": tenantID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []id.ID
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", postgres.ClassifyError(err))
	}
	return ids, nil
}

// ExistsName implements product.Repository.
func (r *ProductRepo) ExistsName(ctx context.Context, tenantID, name string, excludeID id.ID) (bool, error) {
	sql, args, err := r.existsNameQuery(tenantID, name, excludeID).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	if err := r.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check product name: %w", postgres.ClassifyError(err))
	}
	return exists, nil
}

func (r *ProductRepo) existsNameQuery(tenantID, name string, excludeID id.ID) squirrel.SelectBuilder {
	return r.builder.Select("1").
		Prefix("SELECT EXISTS (").
		From(productsTable).
		Where(squirrel.Eq{"name": name, "tenant_id": tenantID}).
		Where(squirrel.NotEq{"id": excludeID}).
		Suffix(")")
}
