package ledger

import (
	"context"
	"errors"
)

// Client is the boundary to the external append-only audit store.
// AppendLockedSnapshot records an immutable snapshot of a locked report and
// returns an opaque commit reference. The store is content-addressed; a
// snapshot is written at most once per lock attempt and never mutated.
type Client interface {
	AppendLockedSnapshot(ctx context.Context, companyId string, reportId int, sequence int64, payload []byte) (string, error)
}

var ErrAppendFailed = errors.New("ledger append failed")

var client Client

func GetClient() Client {
	return client
}

// SetClient installs the ledger backend. Called once from main();
// tests install fakes.
func SetClient(c Client) {
	client = c
}
