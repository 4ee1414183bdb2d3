package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrProductNotFound は商品が存在しないことを表す。
var ErrProductNotFound = errors.New("商品が見つかりません")

// Product は商品。
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  string `json:"created_at"`
}

// productStore はproductsテーブルへのアクセスを提供する。
type productStore struct {
	db *sql.DB
}

const productColumns = "id, name, price_cents, created_by, created_at"

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.CreatedBy, &p.CreatedAt)
	return p, err
}

func (s *productStore) create(ctx context.Context, name string, priceCents int64, createdBy string) (Product, error) {
	row := s.db.QueryRowContext(ctx,
		"INSERT INTO products (id, name, price_cents, created_by) VALUES (?, ?, ?, ?) RETURNING "+productColumns,
		uuid.NewString(), name, priceCents, createdBy,
	)
	p, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("商品の登録に失敗: %w", err)
	}
	return p, nil
}

func (s *productStore) list(ctx context.Context, limit, offset int) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products ORDER BY created_at, id LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("商品の読み取りに失敗: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *productStore) get(ctx context.Context, id string) (Product, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("商品の取得に失敗: %w", err)
	}
	return p, nil
}

func (s *productStore) delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("商品の削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}
