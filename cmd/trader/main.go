package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trader/internal/alert"
	"trader/internal/broker/schwab"
	"trader/internal/model"
	"trader/internal/ops"
	"trader/internal/order"
	"trader/internal/quote"
	"trader/internal/state"
	"trader/internal/stream"
	"trader/internal/tracker"
	"trader/pkg/conn"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("trader: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	account := flag.String("account", "default", "Account name for the watchlist")
	orderSymbol := flag.String("order-symbol", "", "Option symbol to sell to open (one-shot order mode)")
	orderQty := flag.Int("order-qty", 1, "Contracts to sell in one-shot order mode")
	orderCredit := flag.String("order-credit", "", "Limit credit per contract in one-shot order mode")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		return err
	}

	if addr := os.Getenv("PYROSCOPE_SERVER_ADDRESS"); addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   addr,
			Tags: map[string]string{
				"env": os.Getenv("ENV"),
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	tokens := schwab.NewFileTokenSource(httpClient, loaded.Broker.AppKey, loaded.Broker.AppSecret, loaded.Broker.TokenPath)
	rest := schwab.NewClient(httpClient, tokens)

	var notifier alert.Notifier
	if loaded.Alert.TelegramToken != "" {
		notifier = alert.NewTelegram(httpClient, loaded.Alert.TelegramToken, loaded.Alert.TelegramChatID)
	}
	alerts := alert.NewDispatcher(notifier, loaded.Alert.QueueSize)
	go alerts.Run(ctx)

	var ledger *tracker.Tracker
	if loaded.Database != nil {
		db, err := conn.Open(*loaded.Database)
		if err != nil {
			return err
		}
		defer func() {
			_ = conn.Close(db)
		}()
		ledger, err = tracker.New(db)
		if err != nil {
			return err
		}
	}

	manager := order.NewManager(rest, alerts, loaded.Order)
	if *orderSymbol != "" {
		return runOrder(ctx, manager, rest, ledger, alerts, *account, *orderSymbol, *orderQty, *orderCredit, loaded.AdjustPct)
	}

	cache := quote.NewCache()
	client := stream.NewClient(schwab.NewDialer(rest, tokens), cache, alerts, loaded.Stream)
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer client.Stop()

	agg := stream.NewAggregator(client)

	store := state.NewStore(loaded.StateDir)
	symbols, err := store.Symbols(*account)
	if err != nil {
		return err
	}
	if len(symbols) > 0 {
		agg.Register(ctx, "watchlist", symbols, underlyings(symbols))
		logs.Infof("trader: restored %d tracked symbols for %s", len(symbols), *account)
	}

	alerts.Notify("trader started")
	<-ctx.Done()
	alerts.Notify("trader stopping")
	return nil
}

// runOrder sells one option to open at a limit credit, walking the price down
// until it fills or the attempts run out. Fills land in the premium ledger
// when a database is configured.
func runOrder(ctx context.Context, manager *order.Manager, rest *schwab.Client, ledger *tracker.Tracker, alerts alert.Sink, account, symbol string, qty int, credit string, adjustPct int) error {
	limit, err := decimal.NewFromString(credit)
	if err != nil {
		return err
	}
	limit = order.AdjustPercent(limit.Abs(), adjustPct)

	spec := order.SellToOpenSpec(symbol, qty, limit)
	var orderID string
	factory := func(ctx context.Context, price decimal.Decimal) (string, error) {
		s := spec
		s.Price = price.Abs()
		id, err := rest.PlaceOrder(ctx, s)
		if err == nil {
			orderID = id
		}
		return id, err
	}

	outcome, err := manager.PlaceWithImprovement(ctx, model.Underlying(symbol), factory, limit.Neg())
	if err != nil {
		return err
	}
	logs.Infof("trader: order session for %s finished: %s", symbol, outcome)

	if outcome == order.OutcomeFilled && ledger != nil {
		st, err := manager.CheckStatus(ctx, orderID)
		if err != nil {
			return err
		}
		premium := st.Price.Mul(decimal.NewFromInt(int64(qty)))
		if err := ledger.Record(ctx, tracker.PremiumRecord{
			Account:    account,
			OrderID:    orderID,
			Underlying: model.Underlying(symbol),
			Premium:    premium,
			Quantity:   qty,
		}); err != nil {
			alerts.Errorf("premium ledger write failed: %+v", err)
		}
	}
	return nil
}

func underlyings(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		u := model.Underlying(sym)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
