package bot

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/susu3304/tipbot/internal/metrics"
	"go.uber.org/zap"
)

const probeTimeout = 15 * time.Second

// BalanceSource is implemented by *wallet.Gateway.
type BalanceSource interface {
	TotalBalance(ctx context.Context) (decimal.Decimal, error)
}

// walletProbe periodically checks that the wallet still answers.
type walletProbe struct {
	wallet   BalanceSource
	metrics  *metrics.Metrics
	log      *zap.Logger
	interval time.Duration
	stopChan chan struct{}
	done     chan struct{}
	ticker   *time.Ticker

	// up is only touched by the loop goroutine.
	up bool
}

func newWalletProbe(wallet BalanceSource, m *metrics.Metrics, logger *zap.Logger, interval time.Duration) *walletProbe {
	if wallet == nil || interval <= 0 {
		return nil
	}
	return &walletProbe{
		wallet:   wallet,
		metrics:  m,
		log:      logger,
		interval: interval,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
		up:       true,
	}
}

func (p *walletProbe) start() {
	if p == nil {
		return
	}
	p.metrics.WalletUp(true)
	p.ticker = time.NewTicker(p.interval)
	go p.loop()
}

func (p *walletProbe) stop() {
	if p == nil || p.ticker == nil {
		return
	}
	close(p.stopChan)
	p.ticker.Stop()
	<-p.done
}

func (p *walletProbe) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.ticker.C:
			p.tick()
		case <-p.stopChan:
			return
		}
	}
}

func (p *walletProbe) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	_, err := p.wallet.TotalBalance(ctx)
	up := err == nil
	p.metrics.WalletUp(up)

	switch {
	case p.up && !up:
		p.log.Warn("wallet became unreachable", zap.Error(err))
	case !p.up && up:
		p.log.Info("wallet is reachable again")
	}
	p.up = up
}
