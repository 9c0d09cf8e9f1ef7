package game

import (
	"time"

	"github.com/woozymasta/a2s/pkg/a2s"
)

// QueryOptions tunes Source Query requests.
type QueryOptions struct {
	Timeout    time.Duration
	BufferSize uint16
}

// QueryInfo sends an A2S_INFO request to a game server's query port. Only
// Source-engine-family servers answer it; profiles of other kinds simply
// leave the query port unset.
func QueryInfo(ip string, port int, options QueryOptions) (*a2s.Info, error) {
	client, err := a2s.New(ip, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	if options.BufferSize > 0 {
		client.BufferSize = options.BufferSize
	}
	if options.Timeout > 0 {
		client.Timeout = options.Timeout
	}

	return client.GetInfo()
}
