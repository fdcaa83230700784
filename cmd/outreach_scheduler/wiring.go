package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/offertesting/outreach_services/internal/core_domain"
	digestapp "github.com/offertesting/outreach_services/internal/digest_service/app"
	"github.com/offertesting/outreach_services/internal/digest_service/notifier"
	digestpg "github.com/offertesting/outreach_services/internal/digest_service/repository/postgres"
	"github.com/offertesting/outreach_services/internal/platform/config"
	"github.com/offertesting/outreach_services/internal/platform/database"
	"github.com/offertesting/outreach_services/internal/platform/messagebroker"
	"github.com/offertesting/outreach_services/internal/scheduler_service/adapters/events"
	"github.com/offertesting/outreach_services/internal/scheduler_service/app"
	"github.com/offertesting/outreach_services/internal/scheduler_service/provider"
	"github.com/offertesting/outreach_services/internal/scheduler_service/repository/postgres"
)

// components is the wired application for one process.
type components struct {
	pool      *pgxpool.Pool
	nats      *messagebroker.NATSClient
	lanes     []*app.LaneScheduler
	reclaimer *app.Reclaimer
	operator  *app.OperatorService
	digest    *digestapp.Aggregator
}

func (c *components) Close() {
	if c.nats != nil {
		c.nats.Close()
	}
	if c.pool != nil {
		c.pool.Close()
	}
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	window, err := buildWindow(cfg.Window)
	if err != nil {
		return nil, err
	}
	schedule, err := buildDigestSchedule(cfg.Digest, window.Location())
	if err != nil {
		return nil, err
	}

	pool, err := database.NewDBPool(ctx, cfg.Database.DSN, database.PoolConfig{MaxConns: cfg.Database.MaxConns, MinConns: cfg.Database.MinConns})
	if err != nil {
		return nil, err
	}
	c := &components{pool: pool}

	var publisher messagebroker.Publisher = messagebroker.NoopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := messagebroker.NewNATSClient(cfg.NATS.URL, cfg.ServiceName, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.nats = nc
		publisher = nc
	}

	outreachRepo := postgres.NewPgOutreachRepository(pool, logger)
	campaignRepo := postgres.NewPgCampaignRepository(pool, logger)
	historyRepo := postgres.NewPgHistoryRepository(pool, logger)
	blockRepo := postgres.NewPgBlockListRepository(pool, logger)
	activityRepo := postgres.NewPgActivityRepository(pool, logger)
	auditRepo := postgres.NewPgAuditRepository(pool, logger)

	resend := notifier.NewResendNotifier(logger, cfg.Digest.ResendURL, cfg.Digest.ResendKey, cfg.Digest.From, nil)
	c.digest = digestapp.NewAggregator(digestpg.NewPgDigestRepository(pool, logger), outreachRepo, resend, schedule,
		splitRecipients(cfg.Digest.Recipients), logger)

	dispatcher := provider.NewDispatcher(buildTransport(cfg.Provider, logger), cfg.DispatchTimeout, logger)
	recorder := app.NewRecorder(app.RecorderDeps{
		Outreach:  outreachRepo,
		Campaigns: campaignRepo,
		History:   historyRepo,
		Activity:  activityRepo,
		Audit:     auditRepo,
		Digest:    c.digest,
		Events:    events.NewOutcomePublisher(publisher, cfg.NATS.SubjectPrefix, logger),
	}, cfg.StatusRetry.Strategy(), cfg.StoreTimeout, logger)

	deps := app.SchedulerDeps{
		Outreach:    outreachRepo,
		History:     historyRepo,
		Activity:    activityRepo,
		Audit:       auditRepo,
		Eligibility: app.NewEligibilityEngine(blockRepo, historyRepo, cfg.Cooldown, logger),
		Claims:      app.NewClaimCoordinator(outreachRepo, auditRepo, cfg.StoreTimeout, logger),
		Dispatcher:  dispatcher,
		Recorder:    recorder,
		Digest:      c.digest,
	}
	jitter := app.NewJitter(cfg.Jitter.Min, cfg.Jitter.Max, time.Now().UnixNano())
	for _, lc := range cfg.Lanes {
		lane, err := buildLane(lc, window)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.lanes = append(c.lanes, app.NewLaneScheduler(lane, deps, jitter, cfg.StoreTimeout, logger))
	}

	c.reclaimer = app.NewReclaimer(outreachRepo, auditRepo, app.ReclaimPolicy{
		StuckAfter:      cfg.Reclaim.StuckAfter,
		RescheduleDelay: cfg.Reclaim.RescheduleDelay,
		BatchSize:       cfg.Reclaim.BatchSize,
	}, cfg.StoreTimeout, logger)
	c.operator = app.NewOperatorService(outreachRepo, campaignRepo, auditRepo, logger)
	return c, nil
}

func buildWindow(wc config.WindowConfig) (*app.Window, error) {
	loc, err := time.LoadLocation(wc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("window timezone %q: %w", wc.Timezone, err)
	}
	weekdays, err := app.ParseWeekdays(wc.Weekdays)
	if err != nil {
		return nil, err
	}
	holidays, err := app.ParseHolidays(wc.Holidays)
	if err != nil {
		return nil, err
	}
	return app.NewWindow(app.WindowConfig{
		Location:  loc,
		StartHour: wc.StartHour,
		EndHour:   wc.EndHour,
		Weekdays:  weekdays,
		Holidays:  holidays,
	})
}

func buildLane(lc config.LaneConfig, window *app.Window) (app.Lane, error) {
	channels := make([]core_domain.Channel, 0, len(lc.Channels))
	for _, name := range lc.Channels {
		ch := core_domain.Channel(name)
		if !ch.Valid() {
			return app.Lane{}, fmt.Errorf("lane %s: unknown channel %q", lc.Name, name)
		}
		channels = append(channels, ch)
	}
	mode := app.SpacingMode(lc.SpacingMode)
	if mode != app.SpacingPush && mode != app.SpacingPull {
		return app.Lane{}, fmt.Errorf("lane %s: unknown spacing mode %q", lc.Name, lc.SpacingMode)
	}
	return app.Lane{
		Name:     lc.Name,
		Channels: channels,
		Gate: app.Gate{
			Window:     window,
			DailyCap:   lc.DailyCap,
			MinSpacing: lc.MinSpacing,
			Mode:       mode,
		},
		ProviderAccountID: lc.ProviderAccountID,
	}, nil
}

func buildDigestSchedule(dc config.DigestConfig, loc *time.Location) (digestapp.Schedule, error) {
	slots, err := digestapp.ParseSlots(dc.Slots)
	if err != nil {
		return digestapp.Schedule{}, err
	}
	weekdays, err := app.ParseWeekdays(dc.Weekdays)
	if err != nil {
		return digestapp.Schedule{}, err
	}
	return digestapp.Schedule{Slots: slots, Weekdays: weekdays, Window: dc.SlotWindow, Location: loc}, nil
}

func buildTransport(pc config.ProviderConfig, logger *slog.Logger) provider.Transport {
	if pc.Name == "mock" {
		return provider.NewMockProvider(logger, 0.05, 200, 800)
	}
	return provider.NewUnipileProvider(logger, pc.BaseURL, pc.APIKey, &http.Client{Timeout: pc.Timeout})
}

func splitRecipients(list string) []string {
	var out []string
	for _, r := range strings.Split(list, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// selectLanes returns the named lane, or every lane when name is empty.
func selectLanes(lanes []*app.LaneScheduler, name string) ([]*app.LaneScheduler, error) {
	if name == "" {
		return lanes, nil
	}
	for _, l := range lanes {
		if l.Name() == name {
			return []*app.LaneScheduler{l}, nil
		}
	}
	return nil, fmt.Errorf("unknown lane %q", name)
}
