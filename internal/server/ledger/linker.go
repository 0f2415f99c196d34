package ledger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/buildvault/buildvault/internal/common"
	"github.com/buildvault/buildvault/internal/logging"
)

// Emitter delivers events to the ledger/indexer transport.
type Emitter interface {
	Emit(ctx context.Context, event *Event) error
}

// LinkResult reports whether the indexer accepted the event. Indexed=false
// is not an upload failure; indexing is auxiliary.
type LinkResult struct {
	Indexed bool
	Event   *Event
}

// Linker builds and emits link events. Safe for concurrent use.
type Linker struct {
	emitter Emitter
	logger  logging.Logger
	seq     atomic.Int64
}

func NewLinker(emitter Emitter, logger logging.Logger) *Linker {
	return &Linker{
		emitter: emitter,
		logger:  logger.With("module", "ledger_linker"),
	}
}

// Link records the association between a wallet and a content id. Re-linking
// the same pair yields an event with the same ID, so replays collapse
// downstream; the sequence number only disambiguates emission order.
func (l *Linker) Link(ctx context.Context, walletAddress, contentID string, metadata map[string]string) (*LinkResult, error) {
	if walletAddress == "" || contentID == "" {
		return nil, fmt.Errorf("%w: wallet address and content id are required", common.ErrValidation)
	}

	event := &Event{
		ID:            EventID(walletAddress, contentID),
		Type:          EventContentLinked,
		WalletAddress: walletAddress,
		ContentID:     contentID,
		Metadata:      metadata,
		Timestamp:     time.Now().UTC(),
		Sequence:      l.seq.Add(1),
	}

	if err := l.emitter.Emit(ctx, event); err != nil {
		l.logger.Warn(ctx, "link event not indexed", "event_id", event.ID, "error", err.Error())
		return &LinkResult{Indexed: false, Event: event}, err
	}

	l.logger.Info(ctx, "link event emitted", "event_id", event.ID, "cid", contentID)
	return &LinkResult{Indexed: true, Event: event}, nil
}
