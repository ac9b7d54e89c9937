// Command catalog-ingest imports supplier price feeds into the product
// catalog. Feeds are gzip-compressed JSONL files, one product per line:
//
//	{"id":"carrots-1kg","title":"Carrots 1kg","price":"12.00","currency":"DKK","category":"vegetables","stock":40}
//
// All *.jsonl.gz files in the data directory are streamed concurrently.
// When the same product ID appears in several feeds, the first occurrence
// wins; later duplicates are skipped.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/foodnet/market/internal/repository"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
)

type productRow struct {
	id       string
	title    string
	price    decimal.Decimal
	currency string
	category string
	stock    *int
	enabled  bool
}

const upsertProductSQL = `
INSERT INTO products (id, title, price, currency, category, stock, enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	price = EXCLUDED.price,
	currency = EXCLUDED.currency,
	category = EXCLUDED.category,
	stock = EXCLUDED.stock,
	enabled = EXCLUDED.enabled
`

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz supplier feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "glob feeds")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz feeds found in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("streaming feeds", slog.Int("files", len(files)))

	rows := make(chan productRow, 1024)

	g, ctx := errgroup.WithContext(ctx)

	// One parser goroutine per feed.
	var parsers sync.WaitGroup
	for _, f := range files {
		parsers.Add(1)
		g.Go(parseFeed(ctx, f, rows, &parsers))
	}
	go func() {
		parsers.Wait()
		close(rows)
	}()

	// Single writer deduplicates and upserts.
	g.Go(func() error {
		return writeRows(ctx, pool, rows)
	})

	return g.Wait()
}

func parseFeed(ctx context.Context, path string, rows chan<- productRow, wg *sync.WaitGroup) func() error {
	return func() error {
		defer wg.Done()

		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer func() { _ = f.Close() }()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()

		var count uint64
		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			row, err := parseRow(scanner.Bytes())
			if err != nil {
				return errors.Wrapf(err, "parse line %d of %s", count+1, path)
			}

			select {
			case rows <- row:
			case <-ctx.Done():
				return ctx.Err()
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("feed progress", slog.String("file", filepath.Base(path)), slog.Uint64("rows", count))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("feed complete", slog.String("file", filepath.Base(path)), slog.Uint64("rows", count))
		return nil
	}
}

// parseRow decodes one JSONL feed line.
func parseRow(line []byte) (productRow, error) {
	row := productRow{currency: "DKK", enabled: true}

	d := jx.DecodeBytes(line)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			row.id = v
			return err
		case "title":
			v, err := d.Str()
			row.title = v
			return err
		case "price":
			// Feeds send prices as strings to avoid float rounding.
			v, err := d.Str()
			if err != nil {
				return err
			}
			row.price, err = decimal.NewFromString(v)
			return err
		case "currency":
			v, err := d.Str()
			row.currency = v
			return err
		case "category":
			v, err := d.Str()
			row.category = v
			return err
		case "stock":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Int()
			row.stock = &v
			return err
		case "enabled":
			v, err := d.Bool()
			row.enabled = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return row, err
	}

	if row.id == "" {
		return row, errors.New("missing product id")
	}
	if row.title == "" {
		return row, errors.New("missing product title")
	}
	if row.price.IsNegative() {
		return row, errors.Errorf("negative price for %s", row.id)
	}
	return row, nil
}

// writeRows upserts rows, skipping product IDs already written in this run.
// The bloom filter answers "definitely new" cheaply; possible hits are
// confirmed against an exact set so a false positive never drops a product.
func writeRows(ctx context.Context, pool *pgxpool.Pool, rows <-chan productRow) error {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	seen := make(map[string]struct{})

	var written, skipped uint64
	for row := range rows {
		if filter.TestString(row.id) {
			if _, dup := seen[row.id]; dup {
				skipped++
				continue
			}
		}
		filter.AddString(row.id)
		seen[row.id] = struct{}{}

		if _, err := pool.Exec(ctx, upsertProductSQL,
			row.id, row.title, row.price, row.currency, row.category, row.stock, row.enabled,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", row.id)
		}

		written++
		if written%progressEvery == 0 {
			slog.Info("write progress", slog.Uint64("written", written), slog.Uint64("skipped", skipped))
		}
	}

	slog.Info("write complete", slog.Uint64("written", written), slog.Uint64("skipped", skipped))
	return nil
}
