package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"aictl/internal/imageindex"
	"aictl/internal/lmstudio"
	"aictl/internal/utils"
)

// openStore opens the persistent image index with the configured embedder.
func (a *app) openStore() (*imageindex.Store, error) {
	embedClient := a.chatClient(a.cfg.EmbeddingModel)
	embedder, err := lmstudio.NewEmbedder(embedClient, a.cfg.EmbeddingModel, a.cfg.EmbedCacheSize)
	if err != nil {
		return nil, err
	}
	return imageindex.NewStore(imageindex.StoreConfig{
		PersistPath: a.cfg.IndexDir,
	}, embedder.EmbeddingFunc())
}

func newIndexCommand(a *app) *cobra.Command {
	var noVision bool

	cmd := &cobra.Command{
		Use:   "index <directory>...",
		Short: "Build or update the image metadata index",
		Long: `Walk the given directories, describe every image with the vision model,
enrich with DeepStack detections, and store the metadata in the local
vector index. Unchanged files are skipped; entries for deleted files
are pruned.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			manifest, err := imageindex.LoadManifest(a.cfg.IndexDir)
			if err != nil {
				return err
			}

			var analyzer imageindex.Analyzer
			if !noVision {
				analyzer = imageindex.NewDeepStackAnalyzer(a.deepstackClient())
			}

			indexer := imageindex.NewIndexer(imageindex.IndexerConfig{
				Store:     store,
				Manifest:  manifest,
				Describer: imageindex.NewVisionDescriber(a.visionClient()),
				Analyzer:  analyzer,
				Workers:   a.cfg.IndexWorkers,
				Logger:    utils.NewComponentLogger("imageindex"),
			})

			fmt.Printf("%s Indexing %v with %d workers\n", blue("●"), args, a.cfg.IndexWorkers)
			stats, err := indexer.Index(cmd.Context(), args)

			fmt.Printf("%s scanned %d, indexed %d, skipped %d, removed %d",
				green("✓"), stats.Scanned, stats.Indexed, stats.Skipped, stats.Removed)
			if stats.Failed > 0 {
				fmt.Printf(", %s", red(fmt.Sprintf("%d failed", stats.Failed)))
			}
			fmt.Println()
			return err
		},
	}

	cmd.Flags().BoolVar(&noVision, "no-detection", false, "Skip DeepStack detection, index descriptions only")
	return cmd
}

func newFindCommand(a *app) *cobra.Command {
	var (
		topK      int
		minScore  float64
		person    string
		scene     string
		asJSON    bool
		pathsOnly bool
	)

	cmd := &cobra.Command{
		Use:     "find <query...>",
		Aliases: []string{"findimages"},
		Short:   "Semantic search over indexed images",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store.Count() == 0 {
				return fmt.Errorf("the image index is empty; run 'aictl index <directory>' first")
			}

			query := strings.Join(args, " ")
			matches, err := store.Search(cmd.Context(), query, imageindex.SearchOptions{
				TopK:          topK,
				MinSimilarity: float32(minScore),
				Person:        person,
				Scene:         scene,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(matches)
			}
			if len(matches) == 0 {
				fmt.Println(gray("no matches"))
				return nil
			}
			for _, m := range matches {
				if pathsOnly {
					fmt.Println(m.Path)
					continue
				}
				fmt.Printf("%s %s\n", cyan(fmt.Sprintf("%.2f", m.Similarity)), bold(m.Path))
				if m.Summary != "" {
					fmt.Printf("     %s\n", gray(m.Summary))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top", 10, "Maximum number of results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum similarity (0-1)")
	cmd.Flags().StringVar(&person, "person", "", "Only images containing this person")
	cmd.Flags().StringVar(&scene, "scene", "", "Only images with this scene label")
	cmd.Flags().BoolVar(&asJSON, "json", false, "JSON output")
	cmd.Flags().BoolVar(&pathsOnly, "paths", false, "Print file paths only")
	return cmd
}
