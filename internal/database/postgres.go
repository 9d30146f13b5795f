package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DBConfig contém as configurações de conexão ao PostgreSQL
type DBConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// DSN monta a string de conexão do lib/pq
func (c DBConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// DB encapsula a conexão com o PostgreSQL
type DB struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewDB conecta ao PostgreSQL
func NewDB(config DBConfig) (*DB, error) {
	db, err := sqlx.Connect("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewFromSQLX(db), nil
}

// NewFromSQLX cria um DB a partir de uma conexão já aberta
func NewFromSQLX(db *sqlx.DB) *DB {
	return &DB{db: db, timeout: 5 * time.Second}
}

// Close fecha a conexão com o banco
func (d *DB) Close() error {
	return d.db.Close()
}

// WithTimeout retorna uma nova instância de DB com timeout personalizado
func (d *DB) WithTimeout(timeout time.Duration) *DB {
	return &DB{db: d.db, timeout: timeout}
}

// Exec executa uma query SQL que não retorna resultados
func (d *DB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.db.ExecContext(ctx, query, args...)
}

// Select executa uma query e preenche a slice dest com os resultados
func (d *DB) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.db.SelectContext(ctx, dest, query, args...)
}

// InTx executa fn dentro de uma transação, com rollback em caso de erro
func (d *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("erro ao iniciar transação: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("erro no commit da transação: %w", err)
	}
	return nil
}
