package main

import (
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/config"
	"github.com/umbranet/umbrad/consensus"
	"github.com/umbranet/umbrad/dbaccess"
	"github.com/umbranet/umbrad/mempool"
	"github.com/umbranet/umbrad/mining"
	"github.com/umbranet/umbrad/snark"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/util/panics"
)

// umbrad is a wrapper for all the umbrad services
type umbrad struct {
	chain             *consensus.Chain
	txPool            *mempool.TxPool
	templateGenerator *mining.BlkTmplGenerator

	started, shutdown int32
}

// start launches all the umbrad services.
func (s *umbrad) start() {
	// Already started?
	if atomic.AddInt32(&s.started, 1) != 1 {
		return
	}

	log.Trace("Starting umbrad")

	log.Infof("Selected chain tip %s (height %d, %d blocks known)",
		s.chain.SelectedTipHash(), s.chain.Height(), s.chain.BlockCount())
}

// stop gracefully shuts down all the umbrad services.
func (s *umbrad) stop() error {
	// Make sure this only happens once.
	if atomic.AddInt32(&s.shutdown, 1) != 1 {
		log.Infof("Umbrad is already in the process of shutting down")
		return nil
	}

	log.Warnf("Umbrad shutting down")
	return nil
}

// newUmbrad returns a new umbrad instance configured for the network
// specified by the active config. Use start to bring its services up.
func newUmbrad(databaseContext *dbaccess.DatabaseContext) (*umbrad, error) {
	cfg := config.ActiveConfig()

	proofVerifier, err := setupProofVerifier(cfg)
	if err != nil {
		return nil, err
	}

	chain, err := setupChain(databaseContext, proofVerifier)
	if err != nil {
		return nil, err
	}

	txPool := setupMempool(chain)
	templateGenerator := setupTemplateGenerator(chain, txPool)

	s := &umbrad{
		chain:             chain,
		txPool:            txPool,
		templateGenerator: templateGenerator,
	}

	// Reconcile the pool on every chain state change.
	chain.Subscribe(s.handleChainNotification)

	return s, nil
}

func setupProofVerifier(cfg *config.Config) (*snark.Verifier, error) {
	params, err := snark.SetupOrLoadParams(cfg.ParamsDir)
	if err != nil {
		return nil, err
	}
	proofCache := snark.NewProofCache(cfg.ProofCacheMaxSize)
	return snark.NewVerifier(params, proofCache), nil
}

func setupChain(databaseContext *dbaccess.DatabaseContext, proofVerifier *snark.Verifier) (*consensus.Chain, error) {
	chain, err := consensus.New(&consensus.Config{
		DatabaseContext: databaseContext,
		ChainParams:     config.ActiveConfig().NetParams(),
		TimeSource:      consensus.NewTimeSource(),
		ProofVerifier:   proofVerifier,
	})
	return chain, err
}

func setupMempool(chain *consensus.Chain) *mempool.TxPool {
	mempoolConfig := mempool.Config{
		Policy: mempool.Policy{
			MaxPoolSize: config.ActiveConfig().MaxPoolTxs,
		},
		ChainParams:            config.ActiveConfig().NetParams(),
		LedgerView:             chain.LedgerView,
		CheckTransactionLedger: chain.CheckTransactionLedger,
	}

	return mempool.New(&mempoolConfig)
}

func setupTemplateGenerator(chain *consensus.Chain, txPool *mempool.TxPool) *mining.BlkTmplGenerator {
	policy := mining.Policy{
		BlockMaxSize: config.ActiveConfig().BlockMaxSize,
	}
	return mining.NewBlkTmplGenerator(&policy, config.ActiveConfig().NetParams(), txPool, chain)
}

// handleChainNotification keeps the memory pool in sync with the selected
// chain. The chain invokes it outside the chain lock, so it is safe to call
// back into the chain's read API from here.
func (s *umbrad) handleChainNotification(notification *consensus.Notification) {
	switch notification.Type {
	case consensus.NTBlockAccepted:
		data, ok := notification.Data.(*consensus.BlockAcceptedNotificationData)
		if !ok {
			log.Warnf("Block accepted notification data is of wrong type - " +
				"*consensus.BlockAcceptedNotificationData is expected")
			break
		}

		// Side chain blocks don't change the ledger state, so the
		// pool has nothing to reconcile against them.
		if !data.IsMainChain {
			break
		}
		s.txPool.HandleNewTip([]*util.Block{data.Block}, nil)

	case consensus.NTChainReorganized:
		data, ok := notification.Data.(*consensus.ChainReorganizedNotificationData)
		if !ok {
			log.Warnf("Chain reorganized notification data is of wrong type - " +
				"*consensus.ChainReorganizedNotificationData is expected")
			break
		}

		// Transactions from the abandoned branch get a chance to
		// re-enter the pool, oldest blocks first.
		var detachedTransactions []*util.Tx
		for i := len(data.DetachedBlocks) - 1; i >= 0; i-- {
			detachedTransactions = append(detachedTransactions,
				data.DetachedBlocks[i].Transactions()...)
		}
		s.txPool.HandleNewTip(data.AttachedBlocks, detachedTransactions)
	}
}

// SubmitBlock submits a solved block to the chain. It returns whether the
// block took over as the selected tip, along with the rule violation that
// got the block rejected, if any.
func (s *umbrad) SubmitBlock(block *util.Block) (bool, error) {
	isMainChain, err := s.chain.ProcessBlock(block, consensus.BFNone)
	if err != nil {
		var ruleErr consensus.RuleError
		if !errors.As(err, &ruleErr) {
			panics.Exit(log, fmt.Sprintf("Failed to process block %s: %+v",
				block.Hash(), err))
		}
		log.Infof("Rejected block %s: %s", block.Hash(), err)
		return false, err
	}

	log.Infof("Accepted block %s (selected chain: %t)", block.Hash(), isMainChain)
	return isMainChain, nil
}

// SubmitTransaction submits a loose transaction to the memory pool.
func (s *umbrad) SubmitTransaction(tx *util.Tx) (*mempool.TxDesc, error) {
	txDesc, err := s.txPool.ProcessTransaction(tx)
	if err != nil {
		if code, ok := mempool.ExtractRejectCode(err); ok {
			log.Debugf("Rejected transaction %v (%v): %v", tx.Hash(), code, err)
		} else {
			log.Errorf("Failed to process transaction %v: %+v", tx.Hash(), err)
		}
		return nil, err
	}

	log.Debugf("Accepted transaction %v (pool size: %d)", tx.Hash(), s.txPool.Count())
	return txDesc, nil
}

// SelectedTipHash returns the hash of the current selected chain tip.
func (s *umbrad) SelectedTipHash() *chainhash.Hash {
	return s.chain.SelectedTipHash()
}

// BlockTemplate builds a block template over the current selected tip for
// an external prover to solve.
func (s *umbrad) BlockTemplate() *mining.BlockTemplate {
	return s.templateGenerator.NewBlockTemplate()
}
