package biz

import (
	"github.com/kvantora/comment-bridge/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	RateLimiter *usecase.RateLimiterUsecase
	Selections  *usecase.SelectionStore
	Relay       *usecase.RelayUsecase
}
