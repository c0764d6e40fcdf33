package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/atelier-tools/goya"
	"github.com/atelier-tools/goya/explain"
	"github.com/atelier-tools/goya/internal/config"
	"github.com/atelier-tools/goya/interp"
	"github.com/atelier-tools/goya/prompt"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var (
	configPath    = flag.String("config", "", "Path to YAML config file")
	dbPath        = flag.String("db", "", "Path to database (overrides config)")
	target        = flag.String("target", "", "Basename of the clustering artifacts, e.g. results/kmeans16")
	comprehensive = flag.Bool("comprehensive", false, "Inject interpretation terms into the generation prompt")
	llamaServer   = flag.String("llama", "", "Address of running llama server, typically http://localhost:8080")
	llamaSeed     = flag.Int("seed", 0, "Random seed to llama")
	ollamaServer  = flag.String("ollama", "", "Address of running ollama server, typically http://localhost:11434")
	openAI        = flag.Bool("openai", false, "Use OpenAI for embeddings")
	query         = flag.String("query", "", "Search stored cluster descriptions")
	count         = flag.Int("count", -1, "Number of clusters to process")
	debug         = flag.Bool("debug", false, "Enable debug logging")
)

// findClusterImages returns the per-cluster sample images for a target,
// sorted so that index i matches interpretation i.
func findClusterImages(target string) ([]string, error) {
	var images []string
	for _, pat := range []string{"_cluster*.png", "_cluster*.jpg"} {
		matches, err := filepath.Glob(target + pat)
		if err != nil {
			return nil, err
		}
		images = append(images, matches...)
	}
	sort.Strings(images)

	return images, nil
}

// writeRunArtifact persists the run result as a JSON blob with exactly two
// keys, descriptions and similarity. The write is atomic, a temp file in the
// same directory renamed over the destination, so a crash cannot leave a
// partial artifact behind.
func writeRunArtifact(path string, result *explain.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp_descriptions_*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func run(ctx context.Context, g *goya.Goya, cfg *config.Config, logger *zap.Logger) error {
	db, err := goya.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if *query != "" {
		if !g.Embedder.IsHealthy() {
			return fmt.Errorf("embedding server is not responding")
		}
		return runQuery(ctx, *query, 5, g.Embedder, db)
	}

	interps, err := interp.Load(*target + ".json")
	if err != nil {
		return err
	}
	images, err := findClusterImages(*target)
	if err != nil {
		return err
	}
	if *count > -1 {
		images = images[:min(len(images), *count)]
		interps = interps[:min(len(interps), *count)]
	}

	if g.Generator == nil {
		return fmt.Errorf("describing requires a generation backend, use -llama or -ollama")
	}
	if !g.Generator.IsHealthy() {
		return fmt.Errorf("generation server is not responding")
	}
	if !g.Embedder.IsHealthy() {
		return fmt.Errorf("embedding server is not responding")
	}

	fmt.Printf("%d clusters to describe\nUsing describer %s model %s\n",
		len(images), g.Generator.Name(), g.Generator.Model())

	bar := progressbar.NewOptions(
		len(images),
		progressbar.OptionSetDescription("Describing clusters"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)

	explainer := explain.New(
		g.Generator, g.Embedder, prompt.NewBuilder(cfg.Groups),
		explain.WithLogger(logger),
		explain.WithProgress(func(done, total int) { bar.Add(1) }),
	)

	result, err := explainer.Run(ctx, images, interps, *comprehensive)
	if err != nil {
		return err
	}
	bar.Finish()

	artifactPath := *target + "_descriptions.json"
	if err := writeRunArtifact(artifactPath, result); err != nil {
		return err
	}
	logger.Info("wrote run artifact", zap.String("path", artifactPath))

	_, err = db.SaveRun(ctx, &goya.RunRecord{
		Target:       filepath.Base(*target),
		ImagePaths:   images,
		Descriptions: result.Descriptions,
		Similarity:   result.Similarity,
		Embeddings:   result.Embeddings,
		Describer:    g.Generator.Name(),
		GenModel:     g.Generator.Model(),
		EmbedModel:   g.Embedder.Model(),
	}, time.Now())
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	for i, desc := range result.Descriptions {
		fmt.Printf("Cluster %d  redundancy=%0.4f\n%s\n", i, result.Similarity[i], desc)
	}

	return nil
}

func main() {
	flag.Parse()

	// Pick up OPENAI_API_KEY and friends from a local .env, if present
	godotenv.Load()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	// Flags override the config file
	if *dbPath != "" {
		cfg.Database = *dbPath
	}
	if *llamaServer != "" {
		cfg.Backends.LlamaServer = *llamaServer
	}
	if *llamaSeed != 0 {
		cfg.Backends.LlamaSeed = *llamaSeed
	}
	if *ollamaServer != "" {
		cfg.Backends.OllamaServer = *ollamaServer
	}
	if *openAI {
		cfg.Backends.OpenAI = true
	}
	if *debug {
		cfg.Debug = true
	}

	if *target == "" && *query == "" {
		fmt.Fprintln(os.Stderr, "one of -target or -query is required")
		flag.Usage()
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	g, err := goya.Init(goya.InitOptions{
		LlamaServer:      cfg.Backends.LlamaServer,
		LlamaSeed:        cfg.Backends.LlamaSeed,
		OllamaServer:     cfg.Backends.OllamaServer,
		OllamaModel:      cfg.Backends.OllamaModel,
		OllamaEmbedModel: cfg.Backends.OllamaEmbedModel,
		OpenAI:           cfg.Backends.OpenAI,
		OpenAIRateLimit:  cfg.Backends.OpenAIRateLimit,
		HttpClient:       nil,
	})
	if err != nil {
		logger.Fatal("init backends", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, g, cfg, logger); err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
}

// newLogger returns a zap logger. When debug is true, uses development config
// (human-readable, debug level); otherwise uses production config.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
