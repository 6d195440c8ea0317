// Package main provides a CLI that checks every product of a tenant against
// its movement lines and optionally repairs drifted stock.
//
// Usage:
//
//	stockaudit -tenant temple-1 [-product <id>] [-repair] [-actor ops]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"templestock/internal/app"
	"templestock/internal/config"
	appctx "templestock/internal/core/context"
	"templestock/internal/core/id"
	"templestock/pkg/logger"
)

func main() {
	tenantID := flag.String("tenant", "", "tenant to audit (required)")
	productArg := flag.String("product", "", "audit a single product id")
	repair := flag.Bool("repair", false, "overwrite drifted stock with the line total")
	actor := flag.String("actor", "stockaudit", "actor id recorded in the journal for repairs")
	flag.Parse()

	if *tenantID == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.App.LogLevel, Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := appctx.WithTrace(context.Background(), appctx.NewTraceContext())
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: *actor, TenantID: *tenantID})

	backend, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open backend", "error", err)
	}

	code := audit(ctx, backend, *tenantID, *productArg, *actor, *repair)
	if err := backend.Close(); err != nil {
		log.Warnw("backend close", "error", err)
	}
	_ = log.Sync()
	os.Exit(code)
}

// audit prints one row per product and returns the process exit code:
// 1 if any product could not be checked or repaired, 3 if drift was found
// and left in place.
func audit(ctx context.Context, backend *app.Backend, tenantID, productArg, actor string, repair bool) int {
	ids, err := productIDs(ctx, backend, tenantID, productArg)
	if err != nil {
		logger.Error(ctx, "failed to list products", "error", err)
		return 1
	}

	drifted, failed := 0, 0
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tSTORED\tINWARD\tOUTWARD\tEXPECTED\tDRIFT\tACTION")
	for _, pid := range ids {
		rep, err := backend.Engine.VerifyStock(ctx, tenantID, pid)
		if err != nil {
			failed++
			logger.Error(ctx, "verify failed", "product_id", pid, "error", err)
			continue
		}

		action := "-"
		if !rep.Consistent() {
			drifted++
			action = "drift"
			if repair {
				if _, err := backend.Engine.RepairStock(ctx, tenantID, actor, pid); err != nil {
					failed++
					action = "repair failed: " + err.Error()
				} else {
					action = "repaired"
				}
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			pid, rep.CurrentStock, rep.Inward, rep.Outward, rep.Expected, rep.Drift, action)
	}
	_ = w.Flush()

	logger.Info(ctx, "stock audit finished",
		"products", len(ids), "drifted", drifted, "failed", failed, "repair", repair)

	switch {
	case failed > 0:
		return 1
	case drifted > 0 && !repair:
		return 3
	}
	return 0
}

func productIDs(ctx context.Context, backend *app.Backend, tenantID, productArg string) ([]id.ID, error) {
	if productArg != "" {
		pid, err := id.Parse(productArg)
		if err != nil {
			return nil, fmt.Errorf("invalid -product: %w", err)
		}
		return []id.ID{pid}, nil
	}
	return backend.Catalog.ListIDs(ctx, tenantID)
}
