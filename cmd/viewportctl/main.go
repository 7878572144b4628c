package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/invalidation"
	h3mapper "github.com/mohammed-shakir/listings-viewport-cache/internal/mapper/h3"
)

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  viewportctl invalidate [-op update] [-source cli] [-version N] [-bbox x1,y1,x2,y2] [-house id,...] [-point lat,lng -res 8]
  viewportctl smoke`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "invalidate":
		err = runInvalidate(os.Args[2:])
	case "smoke":
		err = runSmoke()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runInvalidate(args []string) error {
	fs := flag.NewFlagSet("invalidate", flag.ExitOnError)
	op := fs.String("op", invalidation.OpUpdate, "insert|update|delete|refresh")
	source := fs.String("source", "viewportctl", "event source used for version ordering")
	version := fs.Uint64("version", uint64(time.Now().UnixNano()), "event version, increasing per source")
	bbox := fs.String("bbox", "", "x1,y1,x2,y2 in EPSG:4326")
	houses := fs.String("house", "", "comma separated house ids")
	point := fs.String("point", "", "lat,lng converted to an h3 cell")
	res := fs.Int("res", 8, "h3 resolution for -point")
	brokers := fs.String("brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "kafka brokers")
	topic := fs.String("topic", getenv("KAFKA_TOPIC", "listings-invalidation"), "invalidation topic")
	_ = fs.Parse(args)

	ev := invalidation.Event{
		Version: *version,
		Op:      *op,
		Source:  *source,
		TS:      time.Now().UTC(),
	}
	if *bbox != "" {
		var b invalidation.BBox
		if _, err := fmt.Sscanf(*bbox, "%g,%g,%g,%g", &b.X1, &b.Y1, &b.X2, &b.Y2); err != nil {
			return fmt.Errorf("parse -bbox: %w", err)
		}
		b.SRID = "EPSG:4326"
		ev.BBox = &b
	}
	if *houses != "" {
		for _, id := range strings.Split(*houses, ",") {
			ev.HouseIDs = append(ev.HouseIDs, strings.TrimSpace(id))
		}
	}
	if *point != "" {
		var lat, lng float64
		if _, err := fmt.Sscanf(*point, "%g,%g", &lat, &lng); err != nil {
			return fmt.Errorf("parse -point: %w", err)
		}
		cell, err := h3mapper.New().CellForPoint(lat, lng, *res)
		if err != nil {
			return err
		}
		ev.H3Cells = []string{cell}
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(strings.Split(*brokers, ","), cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	part, off, err := prod.SendMessage(&sarama.ProducerMessage{
		Topic: *topic,
		Key:   sarama.StringEncoder(ev.DedupeKey()),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("published %s v%d to %s[%d]@%d\n", ev.Op, ev.Version, *topic, part, off)
	return nil
}

// runSmoke checks that the daemon and its backing services answer.
func runSmoke() error {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	base := strings.TrimRight(getenv("VIEWPORTD_URL", "http://localhost:8090"), "/")
	redisAddr := getenv("REDIS_ADDR", "localhost:6379")

	var errs []error
	if err := checkHTTP(ctx, base+"/healthz"); err != nil {
		errs = append(errs, fmt.Errorf("viewportd: %w", err))
	}
	if err := checkHTTP(ctx, base+"/api/viewport/cache"); err != nil {
		errs = append(errs, fmt.Errorf("viewportd cache info: %w", err))
	}

	client := redis.NewClient(&redis.Options{Addr: redisAddr, DialTimeout: 2 * time.Second})
	defer func() { _ = client.Close() }()
	if err := client.Ping(ctx).Err(); err != nil {
		errs = append(errs, fmt.Errorf("redis ping: %w", err))
	} else {
		fmt.Println("redis ok:", redisAddr)
	}
	return errors.Join(errs...)
}

func checkHTTP(ctx context.Context, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	fmt.Printf("%s ok: %s\n", u, strings.TrimSpace(string(body)))
	return nil
}
