package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rl1809/versioned-store/internal/adapter/storage"
	"github.com/rl1809/versioned-store/internal/core/compactid"
	"github.com/rl1809/versioned-store/internal/core/domain"
	"github.com/rl1809/versioned-store/internal/core/service"
	"github.com/rl1809/versioned-store/internal/logger"
)

func main() {
	writers := flag.Int("writers", 50, "concurrent updaters per round")
	rounds := flag.Int("rounds", 20, "number of contested versions")
	driver := flag.String("driver", "sqlite3", "database driver")
	dsn := flag.String("dsn", "", "database DSN (default: a temporary SQLite file)")
	flag.Parse()

	log := logger.NewLogger(logger.Config{Level: "info", Pretty: true})
	ctx := context.Background()

	if *dsn == "" {
		dir, err := os.MkdirTemp("", "versioned-store-stress")
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create temp dir")
		}
		defer os.RemoveAll(dir)
		*dsn = filepath.Join(dir, "stress.db")
	}

	// Initialize database
	db, dialect, err := storage.Open(ctx, *driver, *dsn, storage.PoolOptions{MaxOpenConns: *writers})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := storage.EnsureSchema(ctx, db, dialect); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	// Initialize service
	documents := service.NewDocumentService(storage.NewSQLAdapter(db, dialect), compactid.Default())
	defer documents.Close()

	user := compactid.Default().New()
	doc, err := documents.Create(ctx, service.CreateDocumentRequest{
		Title:      "Stress target",
		Body:       "round 0",
		ModifiedBy: user,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create document")
	}

	// Counters
	var successCount, conflictCount, errorCount atomic.Int32
	failedRounds := 0
	start := time.Now()

	for round := 1; round <= *rounds; round++ {
		expected := int64(round)
		var roundWins atomic.Int32

		// Spawn concurrent updates at the same expected version
		var wg sync.WaitGroup
		for i := 0; i < *writers; i++ {
			wg.Add(1)
			go func(writer int) {
				defer wg.Done()

				body := fmt.Sprintf("round %d by writer %d", round, writer)
				_, err := documents.Update(ctx, service.UpdateDocumentRequest{
					ID:              doc.ID.String(),
					ExpectedVersion: expected,
					Body:            &body,
					ModifiedBy:      user,
					WhatChangedLine: fmt.Sprintf("Writer %d", writer),
				})
				switch {
				case err == nil:
					successCount.Add(1)
					roundWins.Add(1)
				case errors.Is(err, domain.ErrOptimisticConcurrency):
					conflictCount.Add(1)
				default:
					errorCount.Add(1)
					log.Error().Err(err).Int("writer", writer).Msg("unexpected update error")
				}
			}(i)
		}
		wg.Wait()

		if roundWins.Load() != 1 {
			failedRounds++
			log.Error().Int("round", round).Int32("winners", roundWins.Load()).Msg("expected exactly one winner")
		}
	}
	elapsed := time.Since(start)

	// Verify history has no gaps
	var gaps int
	next := int64(1)
	for v, err := range documents.Versions(ctx, doc.ID.String(), 100) {
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read history")
		}
		if v.VersionNumber.Int64() != next {
			gaps++
		}
		next = v.VersionNumber.Int64() + 1
	}
	final, err := documents.Get(ctx, doc.ID.String())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read document")
	}

	// Results
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", dialect.Driver)
	fmt.Printf("Writers/Round:    %d\n", *writers)
	fmt.Printf("Rounds:           %d\n", *rounds)
	fmt.Printf("Committed:        %d\n", successCount.Load())
	fmt.Printf("Conflicts:        %d\n", conflictCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Final Version:    %d\n", final.VersionNumber.Int64())
	fmt.Printf("Snapshots:        %d\n", next-1)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	ok := true
	if failedRounds == 0 && successCount.Load() == int32(*rounds) {
		fmt.Printf("PASS: exactly one update committed in each of %d rounds\n", *rounds)
	} else {
		ok = false
		fmt.Printf("FAIL: %d rounds without exactly one winner\n", failedRounds)
	}

	if gaps == 0 && final.VersionNumber.Int64() == next-1 && next-1 == int64(*rounds+1) {
		fmt.Println("PASS: history is complete with no gaps")
	} else {
		ok = false
		fmt.Printf("FAIL: %d gaps, final version %d, last snapshot %d\n", gaps, final.VersionNumber.Int64(), next-1)
	}

	if !ok {
		os.Exit(1)
	}
}
