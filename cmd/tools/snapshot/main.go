// Command snapshot rebuilds the in-memory engine state from the database and
// prints what it holds. Useful for verifying a persisted snapshot offline
// without serving any queries.
package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"resume-search/internal/config"
	"resume-search/internal/engine"
	"resume-search/internal/logger"
	"resume-search/internal/overlap"
	"resume-search/internal/search"
	"resume-search/internal/storage"
)

func main() {
	var (
		company   = pflag.String("company", "", "print overlap pairs for one company")
		topSkills = pflag.Int("top-skills", 10, "number of top skills to print")
	)
	pflag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	ctx := context.Background()
	db, err := storage.NewDB(cfg.DatabaseURL, logger.Component("storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	index := search.NewIndex(nil, logger.Component("index"))
	overlapEngine := overlap.NewEngine(logger.Component("overlap"))

	loaded, err := engine.Warmup(ctx, db, index, overlapEngine, logger.Component("warmup"))
	if err != nil {
		log.Fatal().Err(err).Msg("snapshot load failed")
	}
	fmt.Printf("loaded %d current resumes\n", loaded)

	if *topSkills > 0 {
		fmt.Println("top skills:")
		for _, s := range index.TopSkills(*topSkills) {
			fmt.Printf("  %-24s %d\n", s.Skill, s.Count)
		}
	}

	if *company != "" {
		pairs := overlapEngine.OverlapsAt(*company)
		fmt.Printf("%d overlap pairs at %s:\n", len(pairs), *company)
		for _, p := range pairs {
			fmt.Printf("  %s <-> %s  [%s .. %s]\n", p.CandidateA, p.CandidateB,
				p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
		}
	}
}
