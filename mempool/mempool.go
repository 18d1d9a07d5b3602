// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/chaincfg"
	"github.com/umbranet/umbrad/consensus"
	"github.com/umbranet/umbrad/mining"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// Policy houses the policy (configuration parameters) which is used to
// control the memory pool.
type Policy struct {
	// MaxPoolSize is the maximum number of transactions the pool may
	// hold at once. Admitting a transaction to a full pool evicts the
	// oldest admitted entry to make room. A value of zero or less
	// leaves the pool unbounded.
	MaxPoolSize int
}

// Config is a descriptor containing the memory pool configuration.
type Config struct {
	// Policy defines the various mempool configuration options related
	// to policy.
	Policy Policy

	// ChainParams identifies which chain parameters the mempool is
	// associated with.
	ChainParams *chaincfg.Params

	// LedgerView defines the function to use to obtain a view of the
	// committed ledger state at the next connection height.
	LedgerView func() consensus.LedgerView

	// CheckTransactionLedger defines the function to use to validate a
	// transaction against a ledger view.
	CheckTransactionLedger func(tx *util.Tx, view consensus.LedgerView) error
}

// TxDesc is a descriptor containing a transaction in the mempool along with
// additional metadata.
type TxDesc struct {
	mining.TxDesc

	// Height is the chain height the transaction was validated to
	// connect at when it entered the pool.
	Height uint64
}

// TxPool is used as a source of transactions that need to be mined into
// blocks. It is safe for concurrent access.
type TxPool struct {
	// lastUpdated is the last time a transaction was added to or
	// removed from the pool, in unix seconds. It must only be accessed
	// atomically.
	lastUpdated int64

	mtx          sync.RWMutex
	cfg          Config
	pool         map[chainhash.Hash]*TxDesc
	spentSerials map[wire.SerialNumber]*TxDesc

	// order holds the pool's entries oldest admission first. It drives
	// both capacity eviction and block template assembly.
	order []*TxDesc
}

// New returns a new memory pool for validating and storing standalone
// transactions until they are mined into a block.
func New(cfg *Config) *TxPool {
	return &TxPool{
		cfg:          *cfg,
		pool:         make(map[chainhash.Hash]*TxDesc),
		spentSerials: make(map[wire.SerialNumber]*TxDesc),
	}
}

// haveTransaction returns whether or not the passed transaction already
// exists in the pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) haveTransaction(hash *chainhash.Hash) bool {
	_, exists := mp.pool[*hash]
	return exists
}

// HaveTransaction returns whether or not the passed transaction already
// exists in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransaction(hash *chainhash.Hash) bool {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	return mp.haveTransaction(hash)
}

// checkPoolDoubleSpend checks whether or not the passed transaction spends
// a serial number some transaction already in the pool spends.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkPoolDoubleSpend(tx *util.Tx) error {
	for _, serialNumber := range tx.MsgTx().SerialNumbers {
		if conflict, exists := mp.spentSerials[serialNumber]; exists {
			str := fmt.Sprintf("transaction %v in the pool already "+
				"spends serial number %x", conflict.Tx.Hash(),
				serialNumber)
			return txRuleError(RejectDuplicate, str)
		}
	}
	return nil
}

// checkPoolAdmission runs the pool local admission gates: the transaction
// must not already be in the pool and must not conflict with a pooled
// spend.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkPoolAdmission(tx *util.Tx) error {
	txHash := tx.Hash()
	if mp.haveTransaction(txHash) {
		str := fmt.Sprintf("already have transaction %v", txHash)
		return txRuleError(RejectDuplicate, str)
	}
	return mp.checkPoolDoubleSpend(tx)
}

// addTransaction adds the passed transaction to the memory pool. It should
// not be called directly as it doesn't perform any validation.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) addTransaction(tx *util.Tx, height uint64) *TxDesc {
	txDesc := &TxDesc{
		TxDesc: mining.TxDesc{
			Tx:    tx,
			Added: time.Now(),
			Fee:   util.Amount(tx.MsgTx().ValueBalance),
		},
		Height: height,
	}

	mp.pool[*tx.Hash()] = txDesc
	for _, serialNumber := range tx.MsgTx().SerialNumbers {
		mp.spentSerials[serialNumber] = txDesc
	}
	mp.order = append(mp.order, txDesc)
	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())

	return txDesc
}

// removeTransaction removes the passed transaction descriptor from the
// pool.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeTransaction(txDesc *TxDesc) {
	delete(mp.pool, *txDesc.Tx.Hash())
	for _, serialNumber := range txDesc.Tx.MsgTx().SerialNumbers {
		delete(mp.spentSerials, serialNumber)
	}
	for i, desc := range mp.order {
		if desc == txDesc {
			mp.order = append(mp.order[:i], mp.order[i+1:]...)
			break
		}
	}
	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())
}

// limitPoolSize evicts the oldest admitted entries until the pool is back
// within its configured capacity.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) limitPoolSize() {
	if mp.cfg.Policy.MaxPoolSize <= 0 {
		return
	}
	for len(mp.pool) > mp.cfg.Policy.MaxPoolSize {
		oldest := mp.order[0]
		log.Debugf("Evicting transaction %v admitted at height %d to "+
			"make room in the pool", oldest.Tx.Hash(), oldest.Height)
		mp.removeTransaction(oldest)
	}
}

// maybeAcceptTransaction runs the stateful half of the admission pipeline
// for a transaction that already passed the context free sanity checks,
// and inserts it on success: the pool gates, the ledger validation against
// the committed view, the insert itself, and the capacity eviction. The
// ledger validation reads committed chain state only, so holding the pool
// write lock across it is safe.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) maybeAcceptTransaction(tx *util.Tx) (*TxDesc, error) {
	err := mp.checkPoolAdmission(tx)
	if err != nil {
		return nil, err
	}

	view := mp.cfg.LedgerView()
	err = mp.cfg.CheckTransactionLedger(tx, view)
	if err != nil {
		var chainErr consensus.RuleError
		if errors.As(err, &chainErr) {
			return nil, chainRuleError(chainErr)
		}
		return nil, err
	}

	txDesc := mp.addTransaction(tx, view.Height())
	mp.limitPoolSize()

	log.Debugf("Accepted transaction %v (pool size: %d)", tx.Hash(),
		len(mp.pool))
	return txDesc, nil
}

// ProcessTransaction is the main workhorse for handling insertion of new
// standalone transactions into the memory pool. It runs the context free
// sanity checks, the pool duplicate and conflict gates, and the full ledger
// validation including the transfer proof, and admits the transaction on
// success. Admitting to a full pool evicts the oldest admitted entry.
//
// This function is safe for concurrent access.
func (mp *TxPool) ProcessTransaction(tx *util.Tx) (*TxDesc, error) {
	log.Tracef("Processing transaction %v", tx.Hash())

	// Context free sanity checks need no pool state and run before any
	// locking.
	err := consensus.CheckTransactionSanity(tx)
	if err != nil {
		var chainErr consensus.RuleError
		if errors.As(err, &chainErr) {
			return nil, chainRuleError(chainErr)
		}
		return nil, err
	}

	// Cheap pool gates next, so a duplicate never reaches the proof
	// pairing below.
	mp.mtx.RLock()
	err = mp.checkPoolAdmission(tx)
	mp.mtx.RUnlock()
	if err != nil {
		return nil, err
	}

	// The transfer proof pairing is the expensive part of admission, so
	// it runs here without the pool lock held. Its verdict lands in the
	// shared proof cache, which turns the revalidation inside
	// maybeAcceptTransaction into a lookup instead of a second pairing.
	view := mp.cfg.LedgerView()
	err = mp.cfg.CheckTransactionLedger(tx, view)
	if err != nil {
		var chainErr consensus.RuleError
		if errors.As(err, &chainErr) {
			return nil, chainRuleError(chainErr)
		}
		return nil, err
	}

	// The pool and the chain may both have moved while the proof was
	// being verified, so the admission pipeline reruns from scratch
	// under the write lock.
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	return mp.maybeAcceptTransaction(tx)
}

// HandleNewTip reconciles the pool after the selected chain changed.
// attachedBlocks are the blocks newly connected to the selected chain, in
// connection order; every pooled transaction spending a serial number one
// of them spent is dropped, since it was either just mined or now
// conflicts with a mined transaction. detachedTransactions come from
// blocks a reorganization disconnected and are readmitted through the
// normal admission path, which keeps out any of them the new branch
// conflicts with.
//
// The removals and readmissions happen under a single acquisition of the
// pool lock so concurrent admissions never observe a half reconciled pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HandleNewTip(attachedBlocks []*util.Block, detachedTransactions []*util.Tx) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	for _, block := range attachedBlocks {
		for _, tx := range block.Transactions() {
			for _, serialNumber := range tx.MsgTx().SerialNumbers {
				conflict, exists := mp.spentSerials[serialNumber]
				if !exists {
					continue
				}
				log.Debugf("Removing transaction %v: serial number "+
					"%x was spent by block %v", conflict.Tx.Hash(),
					serialNumber, block.Hash())
				mp.removeTransaction(conflict)
			}
		}
	}

	for _, tx := range detachedTransactions {
		_, err := mp.maybeAcceptTransaction(tx)
		if err != nil {
			log.Debugf("Not readmitting detached transaction %v: %v",
				tx.Hash(), err)
		}
	}
}

// TransactionsForBlockTemplate returns descriptors for the transactions of
// the next block template: pool entries in admission order, skipping any
// entry whose serial numbers collide with an already selected transaction
// and any that would push the serialized block past maxBlockSize. The
// header reservation assumes a maximal work proof since the miner attaches
// the proof after the template is built. The transaction count is capped
// by the chain parameters.
//
// The pool never admits conflicting spends, but the selection guards
// independently so a returned template can never carry a double spend.
//
// This is part of the mining.TxSource interface implementation and is
// safe for concurrent access as required by the interface contract.
func (mp *TxPool) TransactionsForBlockTemplate(maxBlockSize uint64) []*mining.TxDesc {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	sizeSoFar := uint64(wire.MaxBlockHeaderPayload + wire.MaxVarIntPayload)
	selectedSerials := make(map[wire.SerialNumber]struct{})
	selected := make([]*mining.TxDesc, 0, len(mp.order))

	for _, txDesc := range mp.order {
		if len(selected) >= mp.cfg.ChainParams.MaxTxsPerBlock {
			break
		}

		txSize := uint64(txDesc.Tx.MsgTx().SerializeSize())
		if sizeSoFar+txSize > maxBlockSize {
			log.Tracef("Skipping transaction %v: size %d exceeds the "+
				"remaining block budget", txDesc.Tx.Hash(), txSize)
			continue
		}

		conflicts := false
		for _, serialNumber := range txDesc.Tx.MsgTx().SerialNumbers {
			if _, exists := selectedSerials[serialNumber]; exists {
				conflicts = true
				break
			}
		}
		if conflicts {
			log.Tracef("Skipping transaction %v: spends a serial "+
				"number an already selected transaction spends",
				txDesc.Tx.Hash())
			continue
		}

		for _, serialNumber := range txDesc.Tx.MsgTx().SerialNumbers {
			selectedSerials[serialNumber] = struct{}{}
		}
		selected = append(selected, &txDesc.TxDesc)
		sizeSoFar += txSize
	}

	return selected
}

// MiningDescs returns a slice of mining descriptors for all the
// transactions in the pool, in admission order.
//
// This is part of the mining.TxSource interface implementation and is
// safe for concurrent access as required by the interface contract.
func (mp *TxPool) MiningDescs() []*mining.TxDesc {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	descs := make([]*mining.TxDesc, len(mp.order))
	for i, txDesc := range mp.order {
		descs[i] = &txDesc.TxDesc
	}
	return descs
}

// LastUpdated returns the last time a transaction was added to or removed
// from the pool.
//
// This is part of the mining.TxSource interface implementation and is
// safe for concurrent access as required by the interface contract.
func (mp *TxPool) LastUpdated() time.Time {
	return time.Unix(atomic.LoadInt64(&mp.lastUpdated), 0)
}

// Count returns the number of transactions in the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	return len(mp.pool)
}

// TxDescs returns a slice of descriptors for all the transactions in the
// pool, in admission order. The descriptors are to be treated as read
// only.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxDescs() []*TxDesc {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	descs := make([]*TxDesc, len(mp.order))
	copy(descs, mp.order)
	return descs
}

// FetchTransaction returns the requested transaction from the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchTransaction(txHash *chainhash.Hash) (*util.Tx, error) {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	if txDesc, exists := mp.pool[*txHash]; exists {
		return txDesc.Tx, nil
	}
	return nil, errors.Errorf("transaction %v is not in the pool", txHash)
}
