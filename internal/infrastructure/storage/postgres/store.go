package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"comanda/internal/core/apperror"
	"comanda/internal/core/id"
	"comanda/internal/domain/fiscal"
)

// Table names.
const (
	tableSales          = "sales"
	tableSaleItems      = "sale_items"
	tableFiscalConfigs  = "company_fiscal_configs"
	tableCompanySetting = "company_settings"
	tableAttempts       = "fiscal_attempts"
)

var (
	saleColumns     = ExtractDBColumns[fiscal.Sale]()
	itemColumns     = ExtractDBColumns[fiscal.LineItem]()
	configColumns   = ExtractDBColumns[fiscal.FiscalConfig]()
	settingsColumns = ExtractDBColumns[fiscal.CompanySettings]()
	attemptColumns  = ExtractDBColumns[attemptRow]()
)

// attemptRow is the journal row as stored: the attempt plus its encoded document.
type attemptRow struct {
	fiscal.Attempt
	Payload         []byte          `db:"document"`
	CompressionAlgo CompressionAlgo `db:"compression_algo"`
}

// Store is the PostgreSQL implementation of fiscal.Store.
// Every method joins the transaction carried by ctx, if any.
type Store struct {
	txm   *TxManager
	codec *DocumentCodec
}

// Ensure compile-time interface compliance.
var _ fiscal.Store = (*Store)(nil)

// NewStore creates a new fiscal store.
func NewStore(txm *TxManager, codec *DocumentCodec) *Store {
	return &Store{txm: txm, codec: codec}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (s *Store) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetSaleWithItems loads the sale and its items from one read-only snapshot.
func (s *Store) GetSaleWithItems(ctx context.Context, saleID int64) (*fiscal.Sale, error) {
	var sale fiscal.Sale

	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		querier := s.txm.GetQuerier(ctx)

		sql, args, err := s.Builder().
			Select(saleColumns...).
			From(tableSales).
			Where(squirrel.Eq{"id": saleID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build select sale: %w", err)
		}
		if err := pgxscan.Get(ctx, querier, &sale, sql, args...); err != nil {
			if pgxscan.NotFound(err) {
				return apperror.NewNotFound("sale", saleID)
			}
			return fmt.Errorf("get sale %d: %w", saleID, err)
		}

		sql, args, err = s.Builder().
			Select(itemColumns...).
			From(tableSaleItems).
			Where(squirrel.Eq{"sale_id": saleID}).
			OrderBy("position", "id").
			ToSql()
		if err != nil {
			return fmt.Errorf("build select items: %w", err)
		}
		if err := pgxscan.Select(ctx, querier, &sale.Items, sql, args...); err != nil {
			return fmt.Errorf("get items of sale %d: %w", saleID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &sale, nil
}

// UpdateSaleFiscalResult writes every fiscal field in one UPDATE.
func (s *Store) UpdateSaleFiscalResult(ctx context.Context, saleID int64, result fiscal.Result) error {
	sql, args, err := s.Builder().
		Update(tableSales).
		SetMap(map[string]any{
			"fiscal_status":   string(result.Status),
			"fiscal_key":      result.FiscalKey,
			"protocol_number": result.ProtocolNumber,
			"xml_url":         result.XMLURL,
			"pdf_url":         result.PDFURL,
			"fiscal_message":  result.Message,
		}).
		Where(squirrel.Eq{"id": saleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update sale: %w", err)
	}

	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update sale %d: %w", saleID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("sale", saleID)
	}
	return nil
}

// GetFiscalConfig returns the company's gateway configuration.
func (s *Store) GetFiscalConfig(ctx context.Context, companyID int64) (*fiscal.FiscalConfig, error) {
	var cfg fiscal.FiscalConfig
	if err := s.getByCompany(ctx, tableFiscalConfigs, configColumns, companyID, &cfg); err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("fiscal config", companyID)
		}
		return nil, err
	}
	return &cfg, nil
}

// GetCompanySettings returns the issuer identity of the company.
func (s *Store) GetCompanySettings(ctx context.Context, companyID int64) (*fiscal.CompanySettings, error) {
	var settings fiscal.CompanySettings
	if err := s.getByCompany(ctx, tableCompanySetting, settingsColumns, companyID, &settings); err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("company settings", companyID)
		}
		return nil, err
	}
	return &settings, nil
}

func (s *Store) getByCompany(ctx context.Context, table string, cols []string, companyID int64, dest any) error {
	sql, args, err := s.Builder().
		Select(cols...).
		From(table).
		Where(squirrel.Eq{"company_id": companyID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build select %s: %w", table, err)
	}

	if err := pgxscan.Get(ctx, s.txm.GetQuerier(ctx), dest, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(table, companyID)
		}
		return fmt.Errorf("select %s for company %d: %w", table, companyID, err)
	}
	return nil
}

// CreateAttempt journals a reserved number with its (encoded) document.
func (s *Store) CreateAttempt(ctx context.Context, attempt *fiscal.Attempt) error {
	if id.IsNil(attempt.ID) {
		attempt.ID = id.New()
	}

	payload, algo := s.codec.Encode(attempt.Document)
	data := StructToMap(attempt)
	data["document"] = payload
	data["compression_algo"] = string(algo)
	data["environment"] = string(attempt.Environment)
	data["status"] = string(attempt.Status)
	delete(data, "created_at")
	delete(data, "updated_at")

	sql, args, err := s.Builder().
		Insert(tableAttempts).
		SetMap(data).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert attempt: %w", err)
	}

	row := s.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...)
	if err := row.Scan(&attempt.CreatedAt, &attempt.UpdatedAt); err != nil {
		return fmt.Errorf("insert attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// CompleteAttempt records the final status of a journal row.
func (s *Store) CompleteAttempt(ctx context.Context, attemptID id.ID, status fiscal.Status, message string) error {
	sql, args, err := s.Builder().
		Update(tableAttempts).
		Set("status", string(status)).
		Set("message", message).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": attemptID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update attempt: %w", err)
	}

	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update attempt %s: %w", attemptID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("emission attempt", attemptID)
	}
	return nil
}

// ListAttempts returns the journal of a sale, oldest first, documents decoded.
func (s *Store) ListAttempts(ctx context.Context, saleID int64) ([]*fiscal.Attempt, error) {
	sql, args, err := s.Builder().
		Select(attemptColumns...).
		From(tableAttempts).
		Where(squirrel.Eq{"sale_id": saleID}).
		OrderBy("created_at", "number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select attempts: %w", err)
	}

	var rows []attemptRow
	if err := pgxscan.Select(ctx, s.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list attempts of sale %d: %w", saleID, err)
	}

	out := make([]*fiscal.Attempt, 0, len(rows))
	for i := range rows {
		doc, err := s.codec.Decode(rows[i].Payload, rows[i].CompressionAlgo)
		if err != nil {
			return nil, fmt.Errorf("attempt %s: %w", rows[i].ID, err)
		}
		a := rows[i].Attempt
		a.Document = doc
		out = append(out, &a)
	}
	return out, nil
}
