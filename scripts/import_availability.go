package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"hostbook/internal/config"
	"hostbook/internal/database"
	"hostbook/internal/domain"
	"hostbook/internal/lock"
	"hostbook/internal/models"
	"hostbook/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type ruleEntry struct {
	DayOfWeek int    `yaml:"day_of_week"`
	StartTime string `yaml:"start_time"`
	EndTime   string `yaml:"end_time"`
}

type hostEntry struct {
	models.Host `yaml:",inline"`
	Rules       []ruleEntry `yaml:"rules"`
}

type ImportConfig struct {
	Hosts []hostEntry `yaml:"hosts"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		importPath = flag.String("file", "configs/availability.yaml", "path to hosts and weekly rules yaml")
		dbPath     = flag.String("db", "./data/hostbook.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*importPath)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var cfg ImportConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse import file: %w", err)
	}
	if len(cfg.Hosts) == 0 {
		return fmt.Errorf("no hosts in yaml")
	}

	hosts := make([]models.Host, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		hosts = append(hosts, h.Host)
	}
	if err = config.ValidateHosts(hosts); err != nil {
		return err
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Правила идут через сервис: те же проверки, что и в API
	availability := service.NewAvailabilityService(
		db, lock.NewMemoryLocker(5*time.Second), domain.SystemClock{}, config.BookingConfig{}, &logger,
	)

	created, skipped := 0, 0
	for i := range cfg.Hosts {
		entry := &cfg.Hosts[i]
		if err = db.UpsertHost(ctx, &entry.Host); err != nil {
			return fmt.Errorf("upsert host %s: %w", entry.ID, err)
		}

		for _, r := range entry.Rules {
			start, err := models.ParseClockTime(r.StartTime)
			if err != nil {
				return fmt.Errorf("host %s: %w", entry.ID, err)
			}
			end, err := models.ParseClockTime(r.EndTime)
			if err != nil {
				return fmt.Errorf("host %s: %w", entry.ID, err)
			}

			rule := &models.RecurringRule{HostID: entry.ID, DayOfWeek: r.DayOfWeek, StartTime: start, EndTime: end}
			err = availability.CreateRule(ctx, entry.ID, rule)
			if domain.IsKind(err, domain.KindConflict) {
				// уже импортировано
				skipped++
				continue
			}
			if err != nil {
				var de *domain.Error
				if errors.As(err, &de) {
					return fmt.Errorf("host %s rule %d %s-%s: %s", entry.ID, r.DayOfWeek, r.StartTime, r.EndTime, de.Message)
				}
				return fmt.Errorf("host %s: %w", entry.ID, err)
			}
			created++
		}
	}

	fmt.Printf("done: hosts=%d rules_created=%d rules_skipped=%d\n", len(cfg.Hosts), created, skipped)
	return nil
}
