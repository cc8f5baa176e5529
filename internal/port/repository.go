package port

import (
	"github.com/vertextoedge/sonix-downloader/internal/domain/repository"
)

// TransferStore is an alias to domain repository interface
type TransferStore = repository.TransferStore

// HistoryRepository is an alias to domain repository interface
type HistoryRepository = repository.HistoryRepository
