package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"beanstalk/native/bank"
)

// Producer advances the protocol one block per tick. Each block is stamped,
// runs sunrise once the season clock has moved past the current season and
// is committed.
type Producer struct {
	protocol *Protocol
	keeper   common.Address
	interval time.Duration
	logger   *slog.Logger

	head          Head
	lastTimestamp uint64
}

// NewProducer resumes block production after head. keeper receives the
// sunrise incentive.
func NewProducer(p *Protocol, head Head, keeper common.Address, interval time.Duration, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		protocol:      p,
		keeper:        keeper,
		interval:      interval,
		logger:        logger.With("component", "producer"),
		head:          head,
		lastTimestamp: p.Block().Timestamp,
	}
}

func (pr *Producer) Head() Head { return pr.head }

// Step produces the next block at timestamp. A failed sunrise is logged and
// left for a later block; a failed commit is returned.
func (pr *Producer) Step(ctx context.Context, timestamp uint64) (Head, error) {
	if timestamp < pr.lastTimestamp {
		timestamp = pr.lastTimestamp
	}
	height := pr.head.Height + 1
	pr.protocol.SetBlock(height, timestamp)

	current, err := pr.protocol.Season()
	if err != nil {
		return Head{}, err
	}
	if current.Period > 0 && current.SeasonTime(timestamp) > current.Current {
		res, err := pr.protocol.Sunrise(ctx, pr.keeper, bank.Internal)
		if err != nil {
			pr.logger.Warn("sunrise failed", "height", height, "error", err)
		} else {
			pr.logger.Info("sunrise",
				"height", height,
				"season", res.Season,
				"case", res.CaseID,
				"twa_delta_b", res.TWADeltaB.String(),
				"temperature", res.Temperature,
				"soil", res.Soil.Dec(),
				"minted", res.Minted.Dec(),
			)
		}
	}

	root, err := pr.protocol.Commit()
	if err != nil {
		return Head{}, err
	}
	pr.head = Head{Height: height, Root: root}
	pr.lastTimestamp = timestamp
	return pr.head, nil
}

// Run produces a block every interval until ctx is done.
func (pr *Producer) Run(ctx context.Context) error {
	if pr.interval <= 0 {
		return errors.New("producer: block interval must be positive")
	}
	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-ticker.C:
			if _, err := pr.Step(ctx, uint64(tick.Unix())); err != nil {
				return err
			}
		}
	}
}
