package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"orderfeed/internal/changelog"
	"orderfeed/internal/logger"
	"orderfeed/internal/model"
)

type genConfig struct {
	Initial    int
	Creates    int
	Statuses   int
	DupRate    float64
	StaleRate  float64
	Seed       int64
	OutputFile string
}

func main() {
	var cfg genConfig
	flag.IntVar(&cfg.Initial, "initial", 20, "orders in the opening snapshot")
	flag.IntVar(&cfg.Creates, "creates", 50, "created events after the snapshot")
	flag.IntVar(&cfg.Statuses, "statuses", 40, "status changed events")
	flag.Float64Var(&cfg.DupRate, "dup-rate", 0.1, "share of created events that repeat a known order")
	flag.Float64Var(&cfg.StaleRate, "stale-rate", 0.05, "share of status events for unknown orders")
	flag.Int64Var(&cfg.Seed, "seed", 1, "random seed")
	flag.StringVar(&cfg.OutputFile, "output", "./changelog/orders.jsonl", "output journal")
	flag.Parse()

	lg := logger.Must("info", true)
	defer lg.Sync()
	if err := generate(cfg, lg); err != nil {
		lg.Sugar().Fatalf("generation failed: %v", err)
	}
}

var (
	names    = []string{"Asha Rao", "Ravi Kumar", "Meera Iyer", "John Mathew", "Priya Nair", "Arjun Das"}
	areas    = []string{"MG Road", "Indiranagar", "Koramangala", "Whitefield", "Jayanagar"}
	goods    = []string{"Rice 5kg", "Atta 10kg", "Toor Dal 1kg", "Sunflower Oil 1L", "Sugar 2kg"}
	payments = []string{"COD", "UPI", "Card"}
)

// Payload shapes the backend pushes. The sync client carries these through
// without decoding them.
type address struct {
	ContactName  string `json:"contactName"`
	ContactPhone string `json:"contactPhone"`
	HouseNo      string `json:"houseNo"`
	Area         string `json:"area"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      int    `json:"pincode"`
}

type item struct {
	Name     string  `json:"name"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

type pricing struct {
	Subtotal    float64 `json:"subtotal"`
	DeliveryFee float64 `json:"deliveryFee"`
	Tax         float64 `json:"tax"`
	GrandTotal  float64 `json:"grandTotal"`
}

func newOrder(rng *rand.Rand, n int) (model.Order, error) {
	qty := int64(1 + rng.Intn(4))
	price := float64(50 + rng.Intn(450))
	sub := price * float64(qty)
	fee := 20.0
	tax := float64(int(sub*0.05*100)) / 100
	o := model.Order{
		ID:      fmt.Sprintf("%024x", n),
		OrderID: fmt.Sprintf("ORD-%05d", n),
		Status:  model.StatusPending,
	}
	members := map[string]any{
		"address": address{
			ContactName:  names[rng.Intn(len(names))],
			ContactPhone: fmt.Sprintf("98450%05d", rng.Intn(100000)),
			HouseNo:      fmt.Sprintf("%d", 1+rng.Intn(200)),
			Area:         areas[rng.Intn(len(areas))],
			City:         "Bengaluru",
			State:        "KA",
			Pincode:      560001,
		},
		"items":         []item{{Name: goods[rng.Intn(len(goods))], Quantity: qty, Price: price}},
		"pricing":       pricing{Subtotal: sub, DeliveryFee: fee, Tax: tax, GrandTotal: sub + fee + tax},
		"paymentMethod": payments[rng.Intn(len(payments))],
		"createdAt":     time.Unix(1704067200+int64(n)*60, 0).UTC().Format(time.RFC3339),
	}
	for k, v := range members {
		if err := o.Set(k, v); err != nil {
			return model.Order{}, err
		}
	}
	return o, nil
}

func generate(cfg genConfig, lg *zap.Logger) error {
	if err := os.Remove(cfg.OutputFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate output: %w", err)
	}
	fw, err := changelog.NewFileWriter(filepath.Dir(cfg.OutputFile), filepath.Base(cfg.OutputFile))
	if err != nil {
		return err
	}
	rec := changelog.NewRecorder(fw, lg)
	rng := rand.New(rand.NewSource(cfg.Seed))

	next := 1
	var known []model.Order
	snap := make([]model.Order, 0, cfg.Initial)
	for i := 0; i < cfg.Initial; i++ {
		o, err := newOrder(rng, next)
		if err != nil {
			return err
		}
		next++
		known = append(known, o)
		// snapshots list newest first
		snap = append([]model.Order{o}, snap...)
	}
	if err := rec.Record(changelog.Entry{Kind: changelog.KindSnapshot, Orders: snap}); err != nil {
		return err
	}

	dups, stale := 0, 0
	for i := 0; i < cfg.Creates; i++ {
		var o model.Order
		if len(known) > 0 && rng.Float64() < cfg.DupRate {
			o = known[rng.Intn(len(known))]
			dups++
		} else {
			if o, err = newOrder(rng, next); err != nil {
				return err
			}
			next++
			known = append(known, o)
		}
		if err := rec.Record(changelog.Entry{Kind: changelog.KindCreated, OrderID: o.OrderID, Status: o.Status, Order: &o}); err != nil {
			return err
		}
	}

	targets := []string{model.StatusDelivered, model.StatusCanceled}
	for i := 0; i < cfg.Statuses; i++ {
		id := fmt.Sprintf("ORD-UNKNOWN-%d", i)
		if len(known) > 0 && rng.Float64() >= cfg.StaleRate {
			id = known[rng.Intn(len(known))].OrderID
		} else {
			stale++
		}
		status := targets[rng.Intn(len(targets))]
		if err := rec.Record(changelog.Entry{Kind: changelog.KindStatusChanged, OrderID: id, Status: status}); err != nil {
			return err
		}
	}

	lg.Info("generated journal",
		zap.String("path", fw.Path()),
		zap.Int("orders", len(known)),
		zap.Int("duplicate_creates", dups),
		zap.Int("stale_statuses", stale),
		zap.Int64("last_seq", rec.Seq()))
	return nil
}
