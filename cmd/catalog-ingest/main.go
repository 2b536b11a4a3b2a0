// Command catalog-ingest bulk-loads a product dump into the catalog.
//
// The dump is a gzipped JSON-lines file: one product per line with the same
// shape the API accepts (image payloads base64-encoded). Lines whose product
// name was already seen are skipped: the name index is last-write-wins, so
// loading duplicates would silently alias earlier products.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kv-catalog/internal/catalog"
	"github.com/xenking/kv-catalog/internal/kv/kvredis"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineBytes  = 16 << 20
)

func main() {
	var (
		dataFile string
		redisURL string
		workers  int
	)

	flag.StringVar(&dataFile, "data-file", "products.jsonl.gz", "gzipped JSON-lines product dump")
	flag.StringVar(&redisURL, "redis-url", "", "Redis connection URL (or REDIS_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent create workers")
	flag.Parse()

	if redisURL == "" {
		redisURL = os.Getenv("REDIS_URL")
	}
	if redisURL == "" {
		slog.Error("redis URL is required: set --redis-url or REDIS_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataFile, redisURL, workers); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataFile, redisURL string, workers int) error {
	store, err := kvredis.New(ctx, redisURL)
	if err != nil {
		return errors.Wrap(err, "create redis store")
	}
	defer func() { _ = store.Close() }()

	svc := catalog.NewService(store)

	f, err := os.Open(dataFile)
	if err != nil {
		return errors.Wrap(err, "open data file")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "open gzip stream")
	}
	defer func() { _ = gz.Close() }()

	var created, skipped atomic.Int64
	inputs := make(chan catalog.ProductInput, workers*2)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for in := range inputs {
				if _, err := svc.CreateProduct(gctx, in); err != nil {
					return errors.Wrapf(err, "create product %q", in.Name)
				}
				if n := created.Add(1); n%progressEvery == 0 {
					slog.Info("progress", slog.Int64("created", n))
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(inputs)

		// Seen names are tracked with a bloom filter; a false positive
		// skips a legitimate product, which at 0.1% FPR is an acceptable
		// trade against holding every name in memory.
		seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 1<<20), maxLineBytes)

		line := 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(strings.TrimSpace(string(raw))) == 0 {
				continue
			}

			in, err := decodeProductLine(raw)
			if err != nil {
				return errors.Wrapf(err, "line %d", line)
			}
			if seen.TestAndAddString(in.Name) {
				skipped.Add(1)
				continue
			}

			select {
			case inputs <- in:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return errors.Wrap(scanner.Err(), "scan data file")
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Int64("created", created.Load()),
		slog.Int64("skipped_duplicates", skipped.Load()),
	)
	return nil
}

// decodeProductLine parses one JSONL record into a product input.
func decodeProductLine(raw []byte) (catalog.ProductInput, error) {
	var in catalog.ProductInput
	d := jx.DecodeBytes(raw)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "Name":
			in.Name, err = d.Str()
		case "Description":
			in.Description, err = d.Str()
		case "Vendor":
			in.Vendor, err = d.Str()
		case "Currency":
			in.Currency, err = d.Str()
		case "MainCategoryName":
			in.MainCategoryName, err = d.Str()
		case "Price":
			var num jx.Num
			if num, err = d.Num(); err == nil {
				in.Price, err = decimal.NewFromString(strings.Trim(string(num), `"`))
			}
		case "Images":
			err = d.Arr(func(d *jx.Decoder) error {
				payload, err := d.Base64()
				if err != nil {
					return err
				}
				in.Images = append(in.Images, payload)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return catalog.ProductInput{}, fmt.Errorf("decode product: %w", err)
	}
	return in, nil
}
