package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/config"
	"github.com/medmap-labs/medmap-engine/pkg/database"
	"github.com/medmap-labs/medmap-engine/pkg/llm"
	"github.com/medmap-labs/medmap-engine/pkg/logging"
	"github.com/medmap-labs/medmap-engine/pkg/models"
	"github.com/medmap-labs/medmap-engine/pkg/repositories"
	"github.com/medmap-labs/medmap-engine/pkg/services"
	"github.com/medmap-labs/medmap-engine/pkg/vector"
)

// Version is set at build time via ldflags.
var Version = "dev"

const usage = `medmap-engine maps free-text medical terms onto standard vocabulary concepts.

Usage: medmap-engine <command> [flags]

Commands:
  import-vocabulary <dir>   Load CONCEPT/CONCEPT_RELATIONSHIP/CONCEPT_ANCESTOR exports
  import-source <file>      Load a source term CSV (-vocab required)
  resolve-atc               Rebuild the drug ATC classification table
  embed                     Embed pending standard concepts (-domain filters, -source N embeds a source vocabulary instead)
  automap                   Auto-map unmapped terms of a vocabulary (-vocab, -domains, -drug)
  map                       Manually map one source term (-source, -concepts)
  unmap                     Remove the live mappings of a source term (-source)
  mappings                  List the mapped terms of a vocabulary (-vocab)
  history                   Print the mapping audit trail of a source term (-source)
  status                    Print reference, embedding and mapping status (-domain filters embedding coverage)
  reset-embeddings          Drop the vector collection and its status rows
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Startup failed", zap.Error(err))
	}
	defer app.close()

	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		logger.Fatal("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
	}
}

// app wires configuration, storage and repositories once; services are
// built per command so that commands which never touch the vector index
// or the model providers do not require them.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
	caches *services.Caches

	sourceRepo    repositories.SourceConceptRepository
	conceptRepo   repositories.ConceptRepository
	mappingRepo   repositories.MappingRepository
	auditRepo     repositories.AuditRepository
	atcRepo       repositories.ATCRepository
	embeddingRepo repositories.EmbeddingRepository
	vocabRepo     repositories.VocabularyImportRepository
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	logger.Info("Starting medmap-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("collection", cfg.CollectionName()))

	migrationDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer migrationDB.Close()
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &app{
		cfg:           cfg,
		logger:        logger,
		db:            db,
		caches:        services.NewCaches(),
		sourceRepo:    repositories.NewSourceConceptRepository(db),
		conceptRepo:   repositories.NewConceptRepository(db),
		mappingRepo:   repositories.NewMappingRepository(db),
		auditRepo:     repositories.NewAuditRepository(db),
		atcRepo:       repositories.NewATCRepository(db),
		embeddingRepo: repositories.NewEmbeddingRepository(db),
		vocabRepo:     repositories.NewVocabularyImportRepository(db),
	}, nil
}

func (a *app) close() {
	a.db.Close()
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "import-vocabulary":
		return a.importVocabulary(ctx, args)
	case "import-source":
		return a.importSource(ctx, args)
	case "resolve-atc":
		return a.resolveATC(ctx)
	case "embed":
		return a.embed(ctx, args)
	case "automap":
		return a.automap(ctx, args)
	case "map":
		return a.mapManual(ctx, args)
	case "unmap":
		return a.unmap(ctx, args)
	case "mappings":
		return a.mappings(ctx, args)
	case "history":
		return a.history(ctx, args)
	case "status":
		return a.status(ctx, args)
	case "reset-embeddings":
		return a.resetEmbeddings(ctx)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) vectorStore(ctx context.Context) (*vector.Store, error) {
	return vector.NewStore(ctx, vector.Config{
		URL:     a.cfg.Vector.URL,
		Timeout: 60 * time.Second,
	}, a.logger)
}

func (a *app) importService() services.ImportService {
	return services.NewImportService(a.vocabRepo, a.sourceRepo, 1000, a.caches, a.logger)
}

func (a *app) embedderService(ctx context.Context) (services.Embedder, error) {
	store, err := a.vectorStore(ctx)
	if err != nil {
		return nil, err
	}
	factory := llm.NewClientFactory(a.cfg.AI, a.logger)
	embeddingClient, err := factory.CreateEmbeddingClient()
	if err != nil {
		return nil, err
	}
	return services.NewEmbedder(embeddingClient, store, a.embeddingRepo, a.atcRepo, a.caches, services.EmbedderConfig{
		CollectionName: a.cfg.CollectionName(),
		EmbeddingModel: a.cfg.AI.EmbeddingModel,
		Dimensions:     a.cfg.AI.EmbeddingDims,
		BatchSize:      a.cfg.Mapping.BatchSize,
	}, a.logger), nil
}

func (a *app) autoMapperService(ctx context.Context, drugSpecific bool) (services.AutoMapper, error) {
	store, err := a.vectorStore(ctx)
	if err != nil {
		return nil, err
	}
	factory := llm.NewClientFactory(a.cfg.AI, a.logger)
	embeddingClient, err := factory.CreateEmbeddingClient()
	if err != nil {
		return nil, err
	}
	chatClient, err := factory.CreateChatClient()
	if err != nil {
		return nil, err
	}

	retriever := services.NewCandidateRetriever(embeddingClient, store, a.cfg.CollectionName(), a.logger)
	selector := services.NewLLMReranker(chatClient, a.logger)

	return services.NewAutoMapper(retriever, selector, a.sourceRepo, a.mappingRepo, services.AutoMapperConfig{
		ConfidenceThreshold: a.cfg.Mapping.ConfidenceThreshold,
		DrugCandidates:      a.cfg.Mapping.DrugCandidates,
		StandardCandidates:  a.cfg.Mapping.StandardCandidates,
		DrugSpecific:        drugSpecific,
		OnProgress: func(current, total int) {
			if current%100 == 0 || current == total {
				a.logger.Info("Mapping progress", zap.Int("current", current), zap.Int("total", total))
			}
		},
	}, a.logger), nil
}

func (a *app) importVocabulary(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: import-vocabulary <dir>")
	}

	results, err := a.importService().ImportVocabularyDirectory(ctx, args[0])
	if err != nil {
		return err
	}
	for table, result := range results {
		fmt.Printf("%-22s %-10s %d records\n", table, result.Status, result.RecordsImported)
	}
	return nil
}

func (a *app) importSource(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-source", flag.ContinueOnError)
	vocabID := fs.Int64("vocab", 0, "source vocabulary ID to import under")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *vocabID <= 0 {
		return fmt.Errorf("usage: import-source <file> -vocab <id>")
	}

	file, err := os.Open(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", fs.Arg(0), err)
	}
	defer file.Close()

	count, err := a.importService().ImportSourceConcepts(ctx, file, *vocabID)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d source concepts into vocabulary %d\n", count, *vocabID)
	return nil
}

func (a *app) resolveATC(ctx context.Context) error {
	count, err := services.NewHierarchyService(a.atcRepo, a.logger).Rebuild(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("resolved ATC codes for %d drug concepts\n", count)
	return nil
}

func (a *app) embed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	sourceVocab := fs.Int64("source", 0, "embed this source vocabulary instead of standard concepts")
	domain := fs.String("domain", "", "restrict standard concept embedding to one domain, e.g. Drug")
	if err := fs.Parse(args); err != nil {
		return err
	}

	embedder, err := a.embedderService(ctx)
	if err != nil {
		return err
	}

	onProgress := func(processed, total int64) {
		if processed%1000 == 0 || processed == total {
			a.logger.Info("Embedding progress", zap.Int64("processed", processed), zap.Int64("total", total))
		}
	}

	var count int64
	if *sourceVocab > 0 {
		count, err = embedder.EmbedSourceConcepts(ctx, *sourceVocab, onProgress)
	} else {
		count, err = embedder.EmbedStandardConcepts(ctx, *domain, onProgress)
	}
	if err != nil {
		return err
	}
	fmt.Printf("embedded %d concepts into %s\n", count, a.cfg.CollectionName())
	return nil
}

func (a *app) automap(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("automap", flag.ContinueOnError)
	vocabID := fs.Int64("vocab", 0, "source vocabulary ID to map")
	domains := fs.String("domains", "Condition", "comma-separated target domains, e.g. Drug,Condition")
	drug := fs.Bool("drug", false, "use the drug pipeline: ATC-filtered retrieval and pharmaceutical arbitration")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vocabID <= 0 {
		return fmt.Errorf("usage: automap -vocab <id> [-domains Drug,Condition] [-drug]")
	}

	mapper, err := a.autoMapperService(ctx, *drug)
	if err != nil {
		return err
	}

	summary, err := mapper.MapVocabulary(ctx, *vocabID, splitDomains(*domains))
	if summary != nil {
		fmt.Printf("mapped %d of %d terms via %s (threshold %d, failed %d)\n",
			summary.MappedCount, summary.TotalConcepts, summary.MappingMethod,
			summary.ConfidenceThreshold, summary.FailedTerms)
	}
	return err
}

func (a *app) mapManual(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("map", flag.ContinueOnError)
	sourceID := fs.Int64("source", 0, "source concept ID")
	concepts := fs.String("concepts", "", "comma-separated standard concept IDs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conceptIDs, err := parseIDList(*concepts)
	if err != nil {
		return err
	}
	if *sourceID <= 0 || len(conceptIDs) == 0 {
		return fmt.Errorf("usage: map -source <id> -concepts <id>[,<id>...]")
	}

	targets, err := a.conceptRepo.GetByIDs(ctx, conceptIDs)
	if err != nil {
		return err
	}
	if len(targets) != len(conceptIDs) {
		return fmt.Errorf("only %d of %d concept IDs exist in the vocabulary", len(targets), len(conceptIDs))
	}

	audit := &models.MappingAuditRecord{MappingMethod: models.MethodManual}
	if err := a.mappingRepo.Map(ctx, *sourceID, conceptIDs, audit); err != nil {
		return err
	}
	for _, c := range targets {
		fmt.Printf("mapped source %d -> %d %s (%s)\n", *sourceID, c.ConceptID, c.ConceptName, c.DomainID)
	}

	a.dropSourceVector(ctx, *sourceID)
	return nil
}

// dropSourceVector removes the stale source-term vector once a term is
// mapped. The mapping itself is already durable; a failure here only
// leaves an unused point behind.
func (a *app) dropSourceVector(ctx context.Context, sourceID int64) {
	store, err := a.vectorStore(ctx)
	if err != nil {
		a.logger.Warn("Vector index unreachable, leaving source vector in place",
			zap.Int64("source_id", sourceID), zap.Error(err))
		return
	}
	if err := store.DeletePoints(ctx, a.cfg.CollectionName(), []int64{vector.SourcePointID(sourceID)}); err != nil {
		a.logger.Warn("Failed to delete source vector",
			zap.Int64("source_id", sourceID), zap.Error(err))
	}
}

func (a *app) unmap(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unmap", flag.ContinueOnError)
	sourceID := fs.Int64("source", 0, "source concept ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sourceID <= 0 {
		return fmt.Errorf("usage: unmap -source <id>")
	}

	conceptIDs, err := a.mappingRepo.GetConceptIDs(ctx, *sourceID)
	if err != nil {
		return err
	}
	if len(conceptIDs) == 0 {
		fmt.Printf("source %d has no mappings\n", *sourceID)
		return nil
	}

	if err := a.mappingRepo.Unmap(ctx, *sourceID); err != nil {
		return err
	}
	fmt.Printf("unmapped source %d from %d concept(s)\n", *sourceID, len(conceptIDs))
	return nil
}

func (a *app) mappings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mappings", flag.ContinueOnError)
	vocabID := fs.Int64("vocab", 0, "source vocabulary ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *vocabID <= 0 {
		return fmt.Errorf("usage: mappings -vocab <id>")
	}

	mapped, err := a.mappingRepo.GetMapped(ctx, *vocabID)
	if err != nil {
		return err
	}
	for _, m := range mapped {
		fmt.Printf("%-8d %-40s -> %-10d %-40s (%s, freq %d)\n",
			m.SourceID, m.SourceConceptName, m.ConceptID, m.ConceptName, m.DomainID, m.Frequency)
	}
	fmt.Printf("%d mapping(s) in vocabulary %d\n", len(mapped), *vocabID)
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	sourceID := fs.Int64("source", 0, "source concept ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sourceID <= 0 {
		return fmt.Errorf("usage: history -source <id>")
	}

	records, err := a.auditRepo.History(ctx, *sourceID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("source %d has no audit records\n", *sourceID)
		return nil
	}
	for _, rec := range records {
		confidence := "-"
		if rec.ConfidenceScore != nil {
			confidence = strconv.Itoa(*rec.ConfidenceScore)
		}
		fmt.Printf("%s  concept %-10d %-14s confidence %-3s domains %s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.ConceptID, rec.MappingMethod,
			confidence, strings.Join(rec.TargetDomains, ","))
	}
	return nil
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	domain := fs.String("domain", "", "restrict embedding coverage to one domain, e.g. Drug")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := services.NewStatusService(a.vocabRepo, a.sourceRepo, a.embeddingRepo, a.auditRepo, a.caches, a.logger)
	report, err := svc.Report(ctx, a.cfg.CollectionName(), *domain, 10)
	if err != nil {
		return err
	}

	fmt.Println("reference tables:")
	for _, table := range []string{"concept", "concept_relationship", "concept_ancestor", "concept_atc7", "source_concepts"} {
		fmt.Printf("  %-22s %d\n", table, report.TableCounts[table])
	}

	fmt.Println("source vocabularies:")
	for _, v := range report.Vocabularies {
		fmt.Printf("  vocab %-4d %d/%d mapped (%.1f%%)\n",
			v.SourceVocabularyID, v.MappedConcepts, v.TotalConcepts, v.MappedPercentage)
	}

	es := report.EmbeddingStatus
	scope := a.cfg.CollectionName()
	if *domain != "" {
		scope += ", domain " + *domain
	}
	fmt.Printf("embeddings (%s): %d/%d (%.1f%%)\n", scope, es.Embedded, es.Total, es.Percentage)

	if resolved, err := services.NewHierarchyService(a.atcRepo, a.logger).CountResolved(ctx); err == nil {
		fmt.Printf("atc-resolved drug concepts: %d\n", resolved)
	}

	if len(report.MappingStats) > 0 {
		fmt.Println("mapping methods:")
		for _, stat := range report.MappingStats {
			fmt.Printf("  %-14s %-6d avg confidence %.1f\n",
				stat.MappingMethod, stat.MappingCount, stat.AvgConfidence)
		}
	}

	if len(report.RecentMappings) > 0 {
		fmt.Println("recent auto-mappings:")
		for _, m := range report.RecentMappings {
			confidence := "-"
			if m.ConfidenceScore != nil {
				confidence = strconv.Itoa(*m.ConfidenceScore)
			}
			fmt.Printf("  %-40s -> %-40s (%s, confidence %s)\n",
				m.SourceConceptName, m.MappedConceptName, m.MappingMethod, confidence)
		}
	}

	if imports, err := a.vocabRepo.History(ctx, 5); err == nil && len(imports) > 0 {
		fmt.Println("recent vocabulary imports:")
		for _, imp := range imports {
			fmt.Printf("  %s  %-22s %-10s %d records\n",
				imp.ImportDate.Format("2006-01-02 15:04"), imp.TableName, imp.Status, imp.RecordsImported)
		}
	}

	a.printVectorStatus(ctx)
	return nil
}

// printVectorStatus appends the collection overview when the vector
// index is reachable. Status stays usable when it is not.
func (a *app) printVectorStatus(ctx context.Context) {
	store, err := a.vectorStore(ctx)
	if err != nil {
		a.logger.Warn("Vector index unreachable, skipping collection status", zap.Error(err))
		return
	}

	collections, err := store.ListCollections(ctx)
	if err != nil {
		a.logger.Warn("Failed to list vector collections", zap.Error(err))
		return
	}

	fmt.Println("vector collections:")
	for _, name := range collections {
		info, err := store.Info(ctx, name)
		if err != nil {
			fmt.Printf("  %-30s (info unavailable)\n", name)
			continue
		}
		fmt.Printf("  %-30s %d points (dims %d, %s)\n", name, info.PointsCount, info.VectorSize, info.Status)
	}
}

func (a *app) resetEmbeddings(ctx context.Context) error {
	embedder, err := a.embedderService(ctx)
	if err != nil {
		return err
	}
	if err := embedder.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("reset collection %s\n", a.cfg.CollectionName())
	return nil
}

func splitDomains(domains string) []string {
	parts := strings.Split(domains, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIDList(list string) ([]int64, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid concept ID %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}
