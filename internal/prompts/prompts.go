package prompts

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Library draws prompt texts for a session. With a database it samples the
// prompts table; without one it falls back to the built-in list, so the
// engine works with zero infrastructure.
type Library struct {
	db *pgxpool.Pool
}

func NewLibrary(db *pgxpool.Pool) *Library {
	return &Library{db: db}
}

// Draw returns up to n prompt texts in the category, excluding the given
// texts. Returning fewer than n means the pool is running dry.
func (l *Library) Draw(ctx context.Context, n int, category string, exclude map[string]struct{}) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	if l.db == nil {
		return drawBuiltin(n, exclude), nil
	}

	excluded := make([]string, 0, len(exclude))
	for text := range exclude {
		excluded = append(excluded, text)
	}

	rows, err := l.db.Query(ctx, `
		SELECT text FROM prompts
		WHERE ($1 = '' OR category = $1)
		  AND NOT (text = ANY($2))
		ORDER BY random()
		LIMIT $3`,
		category, excluded, n,
	)
	if err != nil {
		return nil, fmt.Errorf("prompts: query: %w", err)
	}

	texts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("prompts: collect: %w", err)
	}

	return texts, nil
}

func drawBuiltin(n int, exclude map[string]struct{}) []string {
	pool := make([]string, 0, len(builtin))
	for _, text := range builtin {
		if _, used := exclude[text]; used {
			continue
		}
		pool = append(pool, text)
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if len(pool) > n {
		pool = pool[:n]
	}
	return pool
}

var builtin = []string{
	"A llama in a suit",
	"A castle made of pancakes",
	"A robot learning to dance",
	"A pirate cat at a tea party",
	"A rocket powered skateboard",
	"A haunted treehouse",
	"A snowy beach day",
	"A giant sunflower city",
	"An octopus conducting an orchestra",
	"A dragon afraid of heights",
	"A submarine full of balloons",
	"A penguin delivering pizza",
	"A wizard stuck in traffic",
	"A dinosaur at the laundromat",
	"A lighthouse on the moon",
	"A snail winning a race",
	"A ghost hosting a cooking show",
	"A bear riding a unicycle",
	"A city built inside a teapot",
	"A knight allergic to armor",
	"A garden of umbrella trees",
	"A fish walking its human",
	"A volcano erupting confetti",
	"A library at the bottom of the sea",
}
