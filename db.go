package goya

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"
)

//go:embed db/latest_schema.sql
var dbSchema string

var schema = &squibble.Schema{
	Current: dbSchema,
}

type DB struct {
	mu sync.Mutex
	db *sql.DB

	filepath string
}

// Cluster is one described cluster of a run, identified by the run's target
// basename and the cluster index within that run.
type Cluster struct {
	Id          int
	Target      string
	Index       int
	ImagePath   string
	Description string
	Describer   string
	Model       string
	Redundancy  float64
	CreatedAt   time.Time

	Embedding *Embedding // optional reference
}

type Embedding struct {
	Id          int
	ClusterId   int
	Model       string
	Vector      []float32
	ProcessedAt time.Time

	Cluster *Cluster // parent cluster
}

// EmbeddingBatch is one batch of embeddings streamed by EmbeddingsForModel.
// Done is set on the final batch.
type EmbeddingBatch struct {
	Embeds []*Embedding
	Done   bool
}

// RunRecord is everything the store keeps about one completed pipeline run.
// All slices are length N and index-aligned by cluster.
type RunRecord struct {
	Target       string
	ImagePaths   []string
	Descriptions []string
	Similarity   []float64
	Embeddings   [][]float32

	Describer  string
	GenModel   string
	EmbedModel string
}

func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.db.Close()
}

func NewDB(ctx context.Context, fname string) (*DB, error) {
	// Open the DB but flip on the cleaner timestamps from Go
	sqldb, err := sql.Open("sqlite", fname+"?_time_format=sqlite")
	if err != nil {
		return nil, err
	}
	if err := sqldb.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := schema.Apply(ctx, sqldb); err != nil {
		return nil, err
	}

	return &DB{db: sqldb, filepath: fname}, nil
}

// SaveRun records a completed run: one clusters row per description plus its
// embedding. A previous run for the same target is replaced wholesale, the
// table never holds a partial mix of two runs. Returns the stored Cluster
// models in cluster order.
func (db *DB) SaveRun(ctx context.Context, rec *RunRecord, at time.Time) ([]*Cluster, error) {
	n := len(rec.ImagePaths)
	if len(rec.Descriptions) != n || len(rec.Similarity) != n || len(rec.Embeddings) != n {
		return nil, fmt.Errorf("run record slices are not index-aligned")
	}

	txn, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	// Drop the previous run for this target, embeddings first.
	if _, err := txn.ExecContext(ctx,
		`DELETE FROM embeddings WHERE cluster_id IN (SELECT id FROM clusters WHERE target=$1)`,
		rec.Target); err != nil {
		return nil, err
	}
	if _, err := txn.ExecContext(ctx, `DELETE FROM clusters WHERE target=$1`, rec.Target); err != nil {
		return nil, err
	}

	clusters := make([]*Cluster, n)
	for i := range n {
		c := &Cluster{
			Target:      rec.Target,
			Index:       i,
			ImagePath:   rec.ImagePaths[i],
			Description: rec.Descriptions[i],
			Describer:   rec.Describer,
			Model:       rec.GenModel,
			Redundancy:  rec.Similarity[i],
			CreatedAt:   at,
		}

		res, err := txn.ExecContext(ctx, `
			INSERT INTO clusters
			(target, cluster_idx, image_path, description, describer, model, redundancy, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			c.Target, c.Index, c.ImagePath, c.Description, c.Describer, c.Model, c.Redundancy, c.CreatedAt)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		c.Id = int(id)

		blob, err := vectorBlob(rec.Embeddings[i])
		if err != nil {
			return nil, err
		}
		res, err = txn.ExecContext(ctx, `
			INSERT INTO embeddings
			(cluster_id, model, vector, processed_at)
			VALUES ($1,$2,$3,$4)`,
			c.Id, rec.EmbedModel, blob, at)
		if err != nil {
			return nil, err
		}
		eid, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		c.Embedding = &Embedding{
			Id:          int(eid),
			ClusterId:   c.Id,
			Model:       rec.EmbedModel,
			Vector:      rec.Embeddings[i],
			ProcessedAt: at,
			Cluster:     c,
		}

		clusters[i] = c
	}

	return clusters, txn.Commit()
}

// ClustersForTarget returns the stored clusters of a run in cluster order,
// without embedding vectors.
func (db *DB) ClustersForTarget(ctx context.Context, target string) ([]*Cluster, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, target, cluster_idx, image_path, description, describer, model, redundancy, created_at
		FROM clusters
		WHERE target=$1
		ORDER BY cluster_idx`, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []*Cluster
	for rows.Next() {
		c := &Cluster{}

		var desc sql.NullString
		err := rows.Scan(&c.Id, &c.Target, &c.Index, &c.ImagePath, &desc, &c.Describer, &c.Model, &c.Redundancy, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		if desc.Valid {
			c.Description = desc.String
		}
		clusters = append(clusters, c)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return clusters, nil
}

// CountEmbeddings returns the number of stored embeddings for the given
// model.
func (db *DB) CountEmbeddings(ctx context.Context, model string) (int, error) {
	row := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM embeddings WHERE model=$1`, model)
	if row.Err() != nil {
		return 0, row.Err()
	}

	var ne int
	if err := row.Scan(&ne); err != nil {
		return 0, err
	}

	return ne, nil
}

// EmbeddingsForModel streams the stored embeddings for a model in batches,
// each joined with its parent cluster. The final batch has Done set; errors
// are delivered on the second channel and terminate the stream.
func (db *DB) EmbeddingsForModel(ctx context.Context, model string, startId int) (<-chan EmbeddingBatch, <-chan error) {
	const batchSize = 100

	batchCh := make(chan EmbeddingBatch)
	errCh := make(chan error, 1)

	go func() {
		defer close(batchCh)

		lastId := startId
		for {
			batch, err := db.embeddingsBatch(ctx, model, lastId, batchSize)
			if err != nil {
				errCh <- err
				return
			}

			done := len(batch) < batchSize
			if len(batch) > 0 {
				lastId = batch[len(batch)-1].Id
				select {
				case batchCh <- EmbeddingBatch{Embeds: batch, Done: done}:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if done {
				return
			}
		}
	}()

	return batchCh, errCh
}

func (db *DB) embeddingsBatch(ctx context.Context, model string, afterId, limit int) ([]*Embedding, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT e.id, e.cluster_id, e.model, e.vector, e.processed_at,
			   c.id, c.target, c.cluster_idx, c.image_path, c.description,
			   c.describer, c.model, c.redundancy, c.created_at
		FROM embeddings e
		INNER JOIN clusters c ON e.cluster_id=c.id
		WHERE e.model=$1 AND e.id>$2
		ORDER BY e.id
		LIMIT $3`, model, afterId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embeds []*Embedding
	for rows.Next() {
		emb := &Embedding{}
		c := &Cluster{}

		var blobData []byte
		var desc sql.NullString
		err := rows.Scan(
			&emb.Id,
			&emb.ClusterId,
			&emb.Model,
			&blobData,
			&emb.ProcessedAt,
			&c.Id,
			&c.Target,
			&c.Index,
			&c.ImagePath,
			&desc,
			&c.Describer,
			&c.Model,
			&c.Redundancy,
			&c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning embeddings and clusters: %w", err)
		}
		if desc.Valid {
			c.Description = desc.String
		}

		if emb.Vector, err = blobVector(blobData); err != nil {
			return nil, err
		}
		emb.Cluster = c
		c.Embedding = emb
		embeds = append(embeds, emb)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embeddings and clusters: %w", err)
	}

	return embeds, nil
}

func vectorBlob(vector []float32) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Grow(len(vector) * 4)
	if err := binary.Write(buf, binary.BigEndian, vector); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func blobVector(blob []byte) ([]float32, error) {
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.BigEndian, &vector); err != nil {
		return nil, err
	}
	return vector, nil
}
