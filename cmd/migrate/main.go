// Command migrate applies the SQL files in migrations/ in lexical order,
// one transaction per file. With -list it prints the current schema
// instead.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/leadpulse/outreach/internal/pkg/logger"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding .sql migration files")
	list := flag.Bool("list", false, "list public tables and exit")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Error("open database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("ping database", "error", err.Error())
		os.Exit(1)
	}

	if *list {
		if err := listTables(db); err != nil {
			logger.Error("list tables", "error", err.Error())
			os.Exit(1)
		}
		return
	}

	applied, err := applyDir(db, *dir)
	if err != nil {
		logger.Error("migrate", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("migrations applied", "count", applied)
}

func listTables(db *sql.DB) error {
	rows, err := db.Query(`SELECT tablename FROM pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		fmt.Println(name)
		n++
	}
	fmt.Printf("%d tables\n", n)
	return rows.Err()
}

func applyDir(db *sql.DB, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", name, err)
		}
		stmt := string(data)
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if err := applyOne(db, stmt); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		logger.Info("migration applied", "file", name)
		applied++
	}
	return applied, nil
}

// applyOne runs a single migration file in its own transaction so a failed
// file leaves the schema where the previous file left it.
func applyOne(db *sql.DB, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(stmt); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
