package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/audit"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// AuditRepository grava entradas de auditoria de protocolo no PostgreSQL
type AuditRepository struct {
	db    *DB
	table string
}

// NewAuditRepository cria o repositório para a tabela informada
func NewAuditRepository(db *DB, table string) (*AuditRepository, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("nome de tabela de auditoria inválido: %q", table)
	}
	return &AuditRepository{db: db, table: table}, nil
}

// EnsureSchema cria a tabela de auditoria se ela não existir
func (r *AuditRepository) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         BIGSERIAL PRIMARY KEY,
			timestamp  TIMESTAMPTZ NOT NULL,
			protocol   TEXT NOT NULL,
			client_ip  TEXT NOT NULL,
			operation  TEXT NOT NULL,
			block      INTEGER NOT NULL,
			"offset"   INTEGER NOT NULL,
			quantity   INTEGER NOT NULL,
			value      TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL,
			details    TEXT NOT NULL DEFAULT ''
		)`, r.table)

	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("erro ao criar tabela %s: %w", r.table, err)
	}
	return nil
}

// SaveBatch implementa audit.Store gravando o lote em uma transação
func (r *AuditRepository) SaveBatch(ctx context.Context, batch []audit.Entry) error {
	if len(batch) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			timestamp, protocol, client_ip, operation,
			block, "offset", quantity, value, status, details
		) VALUES (
			:timestamp, :protocol, :client_ip, :operation,
			:block, :offset, :quantity, :value, :status, :details
		)`, r.table)

	return r.db.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, entry := range batch {
			if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
				return fmt.Errorf("erro ao inserir entrada de auditoria: %w", err)
			}
		}
		return nil
	})
}

// Recent retorna as entradas mais recentes, opcionalmente filtradas por IP
func (r *AuditRepository) Recent(ctx context.Context, clientIP string, limit int) ([]audit.Entry, error) {
	query := fmt.Sprintf(`SELECT id, timestamp, protocol, client_ip, operation, block, "offset", quantity, value, status, details
		FROM %s`, r.table)
	args := []interface{}{}

	if clientIP != "" {
		query += " WHERE client_ip = $1"
		args = append(args, clientIP)
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", limit)

	var entries []audit.Entry
	if err := r.db.Select(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("erro ao consultar auditoria: %w", err)
	}
	return entries, nil
}
