package render

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/relief-shade/internal/logger"
	"github.com/Faultbox/relief-shade/internal/pool"
	"github.com/Faultbox/relief-shade/pkg/bandpack"
)

// EncodeTiles encodes every tile with enc on the pool. Results keep the order
// of tiles. The first failing tile aborts the batch.
func EncodeTiles(ctx context.Context, p *pool.Pool, enc *bandpack.Encoder, tiles []*bandpack.Tile) ([][]bandpack.PackedBuffer, error) {
	start := time.Now()
	out := make([][]bandpack.PackedBuffer, len(tiles))

	err := p.Run(ctx, len(tiles), func(i int) error {
		bufs, err := enc.Encode(tiles[i])
		if err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
		out[i] = bufs
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Named("render").Debug("tiles encoded",
		zap.Int("tiles", len(tiles)),
		zap.Int("buffers", enc.Plan().Buffers()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
