package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"orderfeed/internal/api"
	"orderfeed/internal/config"
	"orderfeed/internal/logger"
	"orderfeed/internal/model"
	"orderfeed/internal/view"
)

func main() {
	env, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "orderlist: %v\n", err)
		os.Exit(2)
	}
	var (
		q       view.Query
		page    int
		perPage int
		timeout time.Duration
	)
	apiURL := flag.String("api-url", env.APIURL, "backend base url")
	token := flag.String("token", env.Token, "bearer token")
	flag.StringVar(&q.Status, "status", view.AllStatuses, "status filter, All for every status")
	flag.StringVar(&q.Search, "q", "", "search order id, contact name or phone")
	flag.IntVar(&page, "page", 1, "page number")
	flag.IntVar(&perPage, "per-page", view.DefaultPerPage, "orders per page")
	flag.DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
	flag.Parse()

	lg := logger.Must(env.LogLevel, true)
	defer lg.Sync()

	c := api.NewClient(*apiURL, *token)
	c.Log = lg.Named("api")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	orders, err := c.ListOrders(ctx)
	if errors.Is(err, api.ErrUnauthorized) {
		lg.Sugar().Fatalf("token rejected; set ORDERFEED_TOKEN or -token")
	}
	if err != nil {
		lg.Sugar().Fatalf("list orders: %v", err)
	}

	filtered := view.Filter(orders, q)
	printPage(os.Stdout, view.Paginate(filtered, page, perPage), view.CountByStatus(orders))
}

func printPage(out io.Writer, p view.Page, counts view.Counts) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tCONTACT\tPHONE\tITEMS\tTOTAL")
	for _, o := range p.Orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\n",
			o.OrderID, o.Status, o.ContactName(), o.ContactPhone(), o.ItemCount(), o.GrandTotal())
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "\npage %d/%d, %d matching\n", p.Page, p.TotalPages, p.Total)
	fmt.Fprintf(out, "total %d: pending %d, delivered %d, canceled %d\n",
		counts.Total, counts.Of(model.StatusPending), counts.Of(model.StatusDelivered), counts.Of(model.StatusCanceled))
}
