package app

import (
	"context"

	"github.com/datallboy/nntpgate/internal/domain"
	"github.com/datallboy/nntpgate/internal/infra/config"
	"github.com/datallboy/nntpgate/internal/infra/logger"
	"github.com/datallboy/nntpgate/internal/metric"
)

// Poster relays one article. *nntp.Poster is the production implementation.
type Poster interface {
	Post(ctx context.Context, req domain.PostRequest) (*domain.PostResult, error)
}

// Reader fetches the group index and raw articles. *nntp.Reader is the
// production implementation.
type Reader interface {
	Overview(ctx context.Context, group string, page, pageSize int) (*domain.OverviewPage, error)
	Article(ctx context.Context, group, id string) ([]byte, error)
}

// Journal is the optional post audit trail backed by internal/store.
type Journal interface {
	Record(ctx context.Context, e *domain.JournalEntry) error
	Recent(ctx context.Context, limit int) ([]*domain.JournalEntry, error)
}

// Context holds the environment shared by every request handler. It is
// built once at startup and only read afterwards.
type Context struct {
	Config config.Config
	Logger *logger.Logger

	Poster  Poster
	Reader  Reader
	Metrics *metric.Metrics

	// Journal is nil when store.sqlite_path is not configured.
	Journal Journal
}

// NewContext initializes the base environment.
func NewContext(cfg config.Config, log *logger.Logger, poster Poster, reader Reader) *Context {
	return &Context{
		Config:  cfg,
		Logger:  log,
		Poster:  poster,
		Reader:  reader,
		Metrics: metric.New(),
	}
}
