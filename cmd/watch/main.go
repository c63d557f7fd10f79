// Command watch keeps a live page of reports in sync with a signalhub server
// and prints it whenever it changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"signalhub/internal/client"
	"signalhub/internal/domain"
	"signalhub/internal/reconciler"
	"signalhub/pkg/logger"
)

type options struct {
	api     string
	token   string
	filter  domain.Filter
	refresh time.Duration
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)

	var (
		o                    options
		typ, status          string
		lat, lng, radius     float64
		latSet, lngSet, rSet bool
	)
	fs.StringVar(&o.api, "api", "http://localhost:8080", "signalhub base URL")
	fs.StringVar(&o.token, "token", os.Getenv("SIGNALHUB_TOKEN"), "bearer token")
	fs.IntVar(&o.filter.Page, "page", domain.DefaultPage, "page number")
	fs.IntVar(&o.filter.Limit, "limit", domain.DefaultLimit, "page size")
	fs.StringVar(&typ, "type", "", "report type")
	fs.StringVar(&status, "status", "", "report status")
	fs.Float64Var(&lat, "lat", 0, "geo filter latitude")
	fs.Float64Var(&lng, "lng", 0, "geo filter longitude")
	fs.Float64Var(&radius, "radius", 0, "geo filter radius in km")
	fs.DurationVar(&o.refresh, "refresh", time.Minute, "full re-query interval, 0 disables")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lat":
			latSet = true
		case "lng":
			lngSet = true
		case "radius":
			rSet = true
		}
	})

	o.filter.Type = domain.ReportType(typ)
	o.filter.Status = domain.ReportStatus(status)

	switch {
	case !latSet && !lngSet && !rSet:
	case latSet && lngSet && rSet:
		o.filter.Geo = &domain.GeoFilter{Latitude: lat, Longitude: lng, RadiusKM: radius}
	default:
		return o, errors.New("-lat, -lng and -radius must be given together")
	}

	if problems := o.filter.Validate(); len(problems) > 0 {
		return o, fmt.Errorf("invalid filter: %v", problems)
	}
	return o, nil
}

func render(w io.Writer, v reconciler.View) {
	fmt.Fprintf(w, "\n%s  page %d  showing %d of %d\n",
		time.Now().Format("15:04:05"), v.Filter.Page, len(v.Items), v.Total)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tCREATED\tDESCRIPTION")
	for _, r := range v.Items {
		desc := r.Description
		if len(desc) > 48 {
			desc = desc[:45] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID.String()[:8], r.Type, r.Status, r.CreatedAt.Local().Format("2006-01-02 15:04"), desc)
	}
	_ = tw.Flush()
}

func run(ctx context.Context, o options, out io.Writer, log *slog.Logger) error {
	c, err := client.New(o.api, o.token, log)
	if err != nil {
		return err
	}

	rec := reconciler.New(c, c, reconciler.DefaultBuffer, log)
	rec.OnChange(func(v reconciler.View) { render(out, v) })
	c.OnReconnect(func() {
		if _, err := rec.Refresh(ctx); err != nil && !errors.Is(err, reconciler.ErrStaleQuery) && !errors.Is(err, reconciler.ErrNoView) {
			log.Warn("refresh after reconnect failed", slog.Any("error", err))
		}
	})

	runErr := make(chan error, 1)
	go func() { runErr <- rec.Run(ctx) }()

	if _, err := rec.SetFilter(ctx, o.filter); err != nil {
		return fmt.Errorf("initial query: %w", err)
	}

	go rec.RefreshEvery(ctx, o.refresh)

	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.SetupPrettySlog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout, log); err != nil {
		log.Error("watch failed", slog.Any("error", err))
		os.Exit(1)
	}
}
