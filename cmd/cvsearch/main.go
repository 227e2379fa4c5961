package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"resume-search/internal/config"
	"resume-search/internal/document"
	"resume-search/internal/engine"
	"resume-search/internal/extract"
	"resume-search/internal/ingest"
	"resume-search/internal/logger"
	"resume-search/internal/metrics"
	"resume-search/internal/overlap"
	"resume-search/internal/search"
	"resume-search/internal/storage"
)

func main() {
	var (
		ingestDir    = pflag.String("ingest-dir", "", "ingest every document in a directory (candidate id = file stem)")
		file         = pflag.String("file", "", "ingest a single document")
		candidateID  = pflag.String("candidate", "", "candidate id for --file")
		name         = pflag.String("name", "", "candidate name for --file")
		skills       = pflag.String("skills", "", "comma-separated skill search")
		query        = pflag.String("query", "", "full-text search")
		colleagues   = pflag.String("colleagues", "", "list colleagues of a candidate id")
		overlapsAt   = pflag.String("overlaps", "", "list overlap pairs at a company")
		topSkills    = pflag.Int("top-skills", 0, "show the N most common skills")
		deactivate   = pflag.String("deactivate", "", "mark a candidate inactive")
		activate     = pflag.String("activate", "", "mark a candidate active")
		includeInact = pflag.Bool("include-inactive", false, "include inactive candidates in search results")
		userID       = pflag.String("user", "cli", "user id recorded in the search history")
	)
	pflag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	metrics.Register()

	ctx := context.Background()

	var db *storage.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = storage.NewDB(cfg.DatabaseURL, logger.Component("storage"))
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("schema init failed")
		}
	} else {
		log.Info().Msg("DATABASE_URL not set, running in-memory only")
	}

	var historyStore search.HistoryStore
	var repo ingest.Repository
	if db != nil {
		historyStore = db
		repo = db
	}
	history := search.NewHistoryRecorder(historyStore, 256, logger.Component("history"))
	defer history.Close()

	index := search.NewIndex(history, logger.Component("index"))
	overlapEngine := overlap.NewEngine(logger.Component("overlap"))

	if db != nil {
		if _, err := engine.Warmup(ctx, db, index, overlapEngine, logger.Component("warmup")); err != nil {
			log.Fatal().Err(err).Msg("index warmup failed")
		}
	}

	var store document.StorageWriter
	var err error
	switch cfg.StorageBackend {
	case "minio":
		store, err = document.NewMinIOStore(ctx, document.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, logger.Component("minio"))
	default:
		store, err = document.NewLocalStore(cfg.UploadsDir, logger.Component("uploads"))
	}
	if err != nil {
		log.Fatal().Err(err).Msg("storage writer init failed")
	}

	extractor := document.NewDocconvExtractor(cfg.ExtractionTimeout, logger.Component("extractor"))

	var structurer extract.FactExtractor
	if cfg.ExtractorKind == "remote" && cfg.ExtractorURL != "" {
		structurer = extract.NewRemoteStructurer(cfg.ExtractorURL, 30*time.Second, logger.Component("structurer"))
	} else {
		structurer = extract.NewRegexStructurer()
	}

	var candStore engine.CandidateStore
	if db != nil {
		candStore = db
	}

	pipeline := ingest.NewPipeline(store, extractor, structurer, index, overlapEngine, repo, logger.Component("pipeline"))
	svc := engine.NewService(pipeline, index, overlapEngine, history, candStore, logger.Component("engine"))

	switch {
	case *ingestDir != "":
		runDirIngestion(pipeline, cfg, *ingestDir)
	case *file != "":
		if *candidateID == "" {
			log.Fatal().Msg("--file requires --candidate")
		}
		content, err := os.ReadFile(*file)
		if err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("read failed")
		}
		res := pipeline.Run(ctx, ingest.Job{
			Filename:      filepath.Base(*file),
			Content:       content,
			CandidateID:   *candidateID,
			CandidateName: *name,
		})
		fmt.Printf("%s: %s", res.Status, res.ResumeID)
		if res.Reason != "" {
			fmt.Printf(" (%s at %s)", res.Reason, res.FailedStage)
		}
		fmt.Println()
	case *skills != "":
		refs, err := svc.SearchBySkills(ctx, strings.Split(*skills, ","), !*includeInact, *userID)
		if err != nil {
			log.Fatal().Err(err).Msg("skill search failed")
		}
		printRefs(refs)
	case *query != "":
		refs, err := svc.SearchFullText(ctx, *query, !*includeInact, *userID)
		if err != nil {
			log.Fatal().Err(err).Msg("full-text search failed")
		}
		printRefs(refs)
	case *colleagues != "":
		refs, err := svc.GetColleagues(ctx, *colleagues, *userID)
		if err != nil {
			log.Fatal().Err(err).Msg("colleague lookup failed")
		}
		printRefs(refs)
	case *overlapsAt != "":
		for _, p := range svc.OverlapsAt(*overlapsAt) {
			fmt.Printf("%s <-> %s  [%s .. %s]\n", p.CandidateA, p.CandidateB,
				p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"))
		}
	case *topSkills > 0:
		for _, s := range svc.TopSkills(*topSkills) {
			fmt.Printf("%-24s %d\n", s.Skill, s.Count)
		}
	case *deactivate != "":
		if err := svc.SetCandidateActive(ctx, *deactivate, false); err != nil {
			log.Fatal().Err(err).Msg("deactivate failed")
		}
	case *activate != "":
		if err := svc.SetCandidateActive(ctx, *activate, true); err != nil {
			log.Fatal().Err(err).Msg("activate failed")
		}
	default:
		pflag.Usage()
	}
}

func runDirIngestion(pipeline *ingest.Pipeline, cfg *config.Config, dir string) {
	dispatcher := ingest.NewDispatcher(pipeline, cfg.WorkerCount, cfg.QueueSize, logger.Component("dispatcher"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("read dir failed")
	}

	submitted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("skipping unreadable file")
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if dispatcher.Submit(ingest.Job{Filename: entry.Name(), Content: content, CandidateID: stem}) {
			submitted++
		}
	}

	go dispatcher.Close()

	parsed, failed := 0, 0
	for res := range dispatcher.Results() {
		if res.Status == storage.ParsingParsed {
			parsed++
		} else {
			failed++
		}
	}
	fmt.Printf("ingested %d files: %d parsed, %d failed\n", submitted, parsed, failed)
}

func printRefs(refs []search.CandidateRef) {
	for _, r := range refs {
		if r.Score > 0 {
			fmt.Printf("%-36s %-24s %.3f\n", r.CandidateID, r.Name, r.Score)
		} else {
			fmt.Printf("%-36s %s\n", r.CandidateID, r.Name)
		}
	}
}
