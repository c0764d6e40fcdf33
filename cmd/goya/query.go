package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/atelier-tools/goya"
	"github.com/atelier-tools/goya/describer"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// dotp computes the unnormalized dot-product between two vectors. It assumes
// that a and b are equal length.
func dotp(a, b []float32) float64 {
	var sum float64
	for i := range len(a) {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}

func computeCosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0.0, fmt.Errorf("embeddings are different lengths, %d and %d", len(a), len(b))
	}

	dot := dotp(a, b)

	// Magnitudes of the two vectors
	ma := math.Sqrt(dotp(a, a))
	mb := math.Sqrt(dotp(b, b))
	if ma < 1e-6 || mb < 1e-6 {
		return 0, nil
	}

	return float32(dot / (ma * mb)), nil
}

// runQuery ranks all stored cluster descriptions against the query text by
// cosine similarity of their embeddings and prints the top k. The query
// embedding and the first batch of stored embeddings are fetched
// concurrently, and scoring of each batch overlaps the fetch of the next.
func runQuery(ctx context.Context, query string, k int, emb describer.Embedder, db *goya.DB) error {
	g, _ := errgroup.WithContext(ctx)

	var (
		batch    goya.EmbeddingBatch
		batchCh  <-chan goya.EmbeddingBatch
		errCh    <-chan error
		queryvec []float32
		ok       bool
	)

	fmt.Printf("Computing query embedding vector...\n")

	ne, err := db.CountEmbeddings(ctx, emb.Model())
	if err != nil {
		return err
	}
	if ne == 0 {
		return fmt.Errorf("no stored embeddings for model %q, run a describe pass first", emb.Model())
	}

	// Compute the embedding for this query
	g.Go(func() error {
		var err error
		queryvec, err = emb.Embeddings(ctx, query)
		return err
	})

	// Concurrently retrieve the first batch of embeddings for this model
	g.Go(func() error {
		batchCh, errCh = db.EmbeddingsForModel(ctx, emb.Model(), 0)

		select {
		case err := <-errCh:
			return err

		case batch, ok = <-batchCh:
		}

		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("query error - %w", err)
	}

	bar := progressbar.NewOptions(
		ne,
		progressbar.OptionSetDescription("Computing similarities"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)

	// With the data collected we can start scoring. While the first batch is
	// being scored, concurrently the next batch will be fetched.
	topk := NewTopKTracker(k)
	for ok {
		var nb goya.EmbeddingBatch
		g.Go(func() error {
			select {
			case err := <-errCh:
				return err
			case nb, ok = <-batchCh:
			}
			return nil
		})
		g.Go(func() error {
			for _, e := range batch.Embeds {
				score, err := computeCosineSimilarity(queryvec, e.Vector)
				if err != nil {
					return err
				}

				topk.ProcessItem(e, score)
			}
			bar.Add(len(batch.Embeds))
			return nil
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("scoring batches - %w", err)
		}

		batch = nb
	}
	bar.Finish()

	for i, cs := range topk.GetTopK() {
		c := cs.embed.Cluster
		fmt.Printf("Idx %d    Score=%0.5f\nTarget=%q Cluster=%d\nImage=%q\nDescription=%q\n",
			i+1, cs.score, c.Target, c.Index, c.ImagePath, c.Description)
		fmt.Println("==========")
	}

	return nil
}
