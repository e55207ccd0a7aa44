// Command groveinspect is a small operator tool for a GroveDB data
// directory: open it, print the grove root hash, and optionally dump the
// element stored at a given path/key. It generalizes cmd/indexer/main.go's
// flag-parsed, slog-configured startup shape to a one-shot inspection tool
// instead of a long-running P2P indexer.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	catsqlite "github.com/grovedb/grovedb/catalog/sqlite"
	"github.com/grovedb/grovedb/grove"
	"github.com/grovedb/grovedb/path"
	"github.com/grovedb/grovedb/storage/badger"
	"github.com/grovedb/grovedb/storage/memory"
)

func splitAndTrim(s, delim string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, delim)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func main() {
	storageType := flag.String("storage", "badger", "Storage type: memory or badger")
	dataDir := flag.String("data-dir", "./data", "Data directory for BadgerDB")
	catalogPath := flag.String("catalog", "", "Optional SQLite catalog path for subtree lifecycle events")
	pathFlag := flag.String("path", "", "Comma-separated path segments naming a subtree (empty for the grove root)")
	key := flag.String("key", "", "Hex-encoded key to look up under -path; prints the root hash if empty")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var db *grove.DB
	switch *storageType {
	case "memory":
		db = grove.Open(memory.New())
	case "badger":
		st, err := badger.New(&badger.Config{DataDir: *dataDir})
		if err != nil {
			log.Fatalf("failed to open badger store: %v", err)
		}
		db = grove.Open(st)
	default:
		log.Fatalf("unknown storage type: %s (use 'memory' or 'badger')", *storageType)
	}
	defer db.Close()

	if *catalogPath != "" {
		cs, err := catsqlite.New(&catsqlite.Config{DBPath: *catalogPath})
		if err != nil {
			log.Fatalf("failed to open catalog: %v", err)
		}
		defer cs.Close()
		db.SetCatalog(cs)
		logger.Info("catalog attached", "db_path", *catalogPath)
	}

	var segments [][]byte
	for _, s := range splitAndTrim(*pathFlag, ",") {
		segments = append(segments, []byte(s))
	}
	p := path.New(segments...)

	if *key == "" {
		root, err := db.RootHash(nil)
		if err != nil {
			log.Fatalf("failed to read root hash: %v", err)
		}
		fmt.Printf("root hash: %s\n", hex.EncodeToString(root.Bytes()))
		return
	}

	keyBytes, err := hex.DecodeString(*key)
	if err != nil {
		log.Fatalf("-key must be hex-encoded: %v", err)
	}
	el, err := db.Get(nil, p, keyBytes)
	if err != nil {
		log.Fatalf("get failed: %v", err)
	}
	fmt.Printf("kind: %s\n", el.Kind)
	if el.Kind.IsTree() {
		if el.RootKey == nil {
			fmt.Println("subtree: empty")
		} else {
			fmt.Printf("subtree root key: %s\n", hex.EncodeToString(el.RootKey))
		}
	} else {
		fmt.Printf("value: %s\n", hex.EncodeToString(el.Value))
	}
}
