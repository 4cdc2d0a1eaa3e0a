package wallet

import (
	"fmt"
	"net"
	"strconv"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/susu3304/tipbot/internal/config"
)

// Dial creates an HTTP POST JSON-RPC client for the coin daemon.
func Dial(cfg config.RPC) (*rpcclient.Client, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   !cfg.TLS,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client: %w", err)
	}
	return client, nil
}
