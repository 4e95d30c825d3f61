package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tokokasir/backend/internal/archive"
	"tokokasir/backend/internal/cache"
	"tokokasir/backend/internal/catalog"
	"tokokasir/backend/internal/checkout"
	"tokokasir/backend/internal/config"
	"tokokasir/backend/internal/httpapi"
	"tokokasir/backend/internal/insight"
	"tokokasir/backend/internal/ledger"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	var store *archive.Store
	if cfg.DatabaseURL != "" {
		pg, err := archive.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start without the archive", err)
		}
		store = pg
		closers = append(closers, pg.Close)
		log.Println("archive: postgres")
	} else {
		log.Println("archive: disabled")
	}

	cat, led := loadState(ctx, cfg.StoreID, store)

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	var saleArchive checkout.SaleArchiver
	var productArchive httpapi.ProductArchiver
	if store != nil {
		saleArchive = store
		productArchive = store
	}

	engine := checkout.NewEngine(cfg.StoreID, cat, led, saleArchive, log.Default())
	insights := insight.NewService(cfg.StoreID, led, reportCache, time.Duration(cfg.ReportTTLSeconds)*time.Second, log.Default())

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	if err := auth.SeedUser("admin", cfg.SeedAdminPassword, "admin"); err != nil {
		log.Fatalf("seed admin account: %v", err)
	}
	if cfg.SeedCashierPassword != "" {
		if err := auth.SeedUser("kasir", cfg.SeedCashierPassword, "cashier"); err != nil {
			log.Fatalf("seed cashier account: %v", err)
		}
	}

	api := httpapi.New(cfg.StoreID, cat, led, engine, insights, productArchive, auth, cfg.AllowedOrigin, log.Default())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// loadState warms the catalog and ledger from the archive when one is
// configured; otherwise the demo catalog is used.
func loadState(ctx context.Context, storeID string, store *archive.Store) (*catalog.Catalog, *ledger.Ledger) {
	led := ledger.New()
	if store == nil {
		return catalog.NewSeeded(), led
	}

	products, err := store.LoadProducts(ctx)
	if err != nil {
		log.Fatalf("load products from archive: %v", err)
	}
	if len(products) == 0 {
		cat := catalog.NewSeeded()
		for _, p := range cat.Snapshot() {
			if err := store.SaveProduct(ctx, p); err != nil {
				log.Fatalf("archive seed product %s: %v", p.ID, err)
			}
		}
		log.Printf("catalog: seeded %d products into empty archive", len(cat.Snapshot()))
		products = cat.Snapshot()
	}

	cat := catalog.New()
	for _, p := range products {
		if err := cat.Upsert(p); err != nil {
			log.Fatalf("restore product %s: %v", p.ID, err)
		}
	}

	sales, err := store.LoadSales(ctx, storeID)
	if err != nil {
		log.Fatalf("load sales from archive: %v", err)
	}
	for _, rec := range sales {
		led.Append(rec)
	}
	log.Printf("state restored: %d products, %d sales", len(products), len(sales))
	return cat, led
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.SeedAdminPassword) < 8 {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be set and at least 8 characters")
	}
	if cfg.SeedCashierPassword != "" && len(cfg.SeedCashierPassword) < 8 {
		return fmt.Errorf("SEED_CASHIER_PASSWORD must be at least 8 characters when set")
	}
	return nil
}
