// Command slimcryptdb is a minimal demonstration binary: it opens an
// engine directory, runs one seeded insert/query, and closes cleanly.
// It is deliberately not a REST server or CLI shell — both remain
// external collaborators per spec.md §1.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/Syras206/slimcryptdb"
	"github.com/Syras206/slimcryptdb/crypto"
	"github.com/Syras206/slimcryptdb/errs"
	"github.com/Syras206/slimcryptdb/query"
	"github.com/Syras206/slimcryptdb/record"
)

func main() {
	dataDir := flag.String("datadir", "./datafiles", "Directory to store encrypted table/index/WAL files")
	keyHex := flag.String("key", "", "32-byte master key, hex-encoded (generated and printed if omitted)")
	verbose := flag.Bool("verbose", true, "Enable verbose logging")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	sugar := logger.Sugar()

	key, err := resolveKey(*keyHex, sugar)
	if err != nil {
		sugar.Fatalf("failed to resolve master key: %v", err)
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		sugar.Fatalf("failed to create data directory: %v", err)
	}

	db, err := slimcryptdb.Open(*dataDir, key,
		slimcryptdb.WithLogger(sugar),
		slimcryptdb.WithDebug(*verbose),
	)
	if err != nil {
		sugar.Fatalf("failed to open engine: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			sugar.Warnf("close reported errors: %v", err)
		}
	}()

	const table = "secure_data"
	if err := db.CreateTable(table, nil, ""); err != nil && errs.CodeOf(err) != errs.StateError {
		sugar.Fatalf("create table failed: %v", err)
	}

	row := record.Record{}.
		Set("secret", "top_secret_information").
		Set("level", "classified")

	inserted, err := db.AddData(table, row, "")
	if err != nil {
		sugar.Fatalf("insert failed: %v", err)
	}
	id, _ := inserted.ID()
	fmt.Printf("inserted row %s into %q\n", id, table)

	results, err := db.Query(table, query.Cond("level", query.Eq, "classified"), query.SortSpec{}, 0, 0)
	if err != nil {
		sugar.Fatalf("query failed: %v", err)
	}
	fmt.Printf("query returned %d row(s)\n", len(results))
}

func resolveKey(keyHex string, logger *zap.SugaredLogger) ([]byte, error) {
	if keyHex == "" {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		logger.Infof("no -key given; generated a fresh master key for this run (not persisted)")
		return key, nil
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != crypto.KeySize {
		return nil, fmt.Errorf("-key must decode to exactly %d hex-encoded bytes", crypto.KeySize)
	}
	return key, nil
}
