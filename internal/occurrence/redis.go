package occurrence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/redis"
)

// Redis keeps one list per document; every Append pushes one element
// holding that batch as a JSON array.
type Redis struct {
	client *pkgredis.Client
	prefix string
}

func NewRedis(client *pkgredis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(id index.DocumentID) string {
	return r.prefix + strconv.FormatUint(uint64(id), 10)
}

func (r *Redis) Append(ctx context.Context, id index.DocumentID, occs []index.Occurrence) error {
	if len(occs) == 0 {
		return nil
	}
	batch, err := json.Marshal(occs)
	if err != nil {
		return fmt.Errorf("encoding occurrences: %w", err)
	}
	if err := r.client.Append(ctx, r.key(id), batch); err != nil {
		return fmt.Errorf("appending occurrences of document %d: %w", id, err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, id index.DocumentID) ([]index.Occurrence, error) {
	batches, err := r.client.List(ctx, r.key(id))
	if err != nil {
		return nil, fmt.Errorf("reading occurrences of document %d: %w", id, err)
	}
	var out []index.Occurrence
	for _, b := range batches {
		var occs []index.Occurrence
		if err := json.Unmarshal(b, &occs); err != nil {
			return nil, fmt.Errorf("%w: occurrence batch of document %d: %v", apperrors.ErrMalformedRecord, id, err)
		}
		out = append(out, occs...)
	}
	return out, nil
}

// Delete removes id's occurrence list.
func (r *Redis) Delete(ctx context.Context, id index.DocumentID) error {
	return r.client.Del(ctx, r.key(id))
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx) }

func (r *Redis) Close() error { return r.client.Close() }
