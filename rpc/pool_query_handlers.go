package rpc

import (
	"net/http"
)

func (s *Server) handleDailyStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params userParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddr("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	stats, err := s.engine.DailyStatsOf(user)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, dailyStatsResult{
		Epoch:            stats.Epoch,
		ContributionWei:  formatWei(stats.ContributionWei),
		ReceiverEntries:  stats.ReceiverEntries,
		ReceiverExits:    stats.ReceiverExits,
		WithdrawalCount:  stats.WithdrawalCount,
		TransactionCount: stats.TransactionCount,
		IsReceiver:       stats.IsReceiver,
	})
}

func (s *Server) handleWithdrawable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params userParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddr("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := s.engine.Withdrawable(user)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawableResult{
		Address:         formatAddr(user),
		WithdrawableWei: formatWei(amount),
	})
}

func (s *Server) handleWithdrawalStats(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params userParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	user, err := parseAddr("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	stats, err := s.engine.WithdrawalStatsOf(user)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawalStatsResult{
		WithdrawalCount: stats.WithdrawalCount,
		DailyLimit:      stats.DailyLimit,
		LastWithdrawal:  stats.LastWithdrawal,
		NextEligibleAt:  stats.NextEligibleAt,
	})
}

func (s *Server) handleUnclaimedFunds(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	amount, err := s.engine.UnclaimedFunds()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, unclaimedResult{UnclaimedWei: formatWei(amount)})
}

func (s *Server) handleDistributionInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	info, err := s.engine.DistributionInfoOf()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, distributionInfoResult{
		Epoch:           info.Epoch,
		WindowOpen:      info.WindowOpen,
		Distributed:     info.Distributed,
		NextWindowStart: info.NextWindowStart,
		InProgress:      info.InProgress,
		Cursor:          info.Cursor,
		SnapshotSize:    info.SnapshotSize,
		PoolTotalWei:    formatWei(info.PoolTotalWei),
	})
}

func (s *Server) handleFailedTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params receiverParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	receiver, err := parseAddr("receiver", params.Receiver)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	rec, err := s.engine.FailedTransferOf(receiver)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if rec == nil {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, failedTransferResult{
		Receiver:   formatAddr(rec.Receiver),
		AmountWei:  formatWei(rec.AmountWei),
		FailedAt:   rec.FailedAt,
		RetryCount: rec.RetryCount,
	})
}

func (s *Server) handleReceiverCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.engine.ReceiverCount()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receiverCountResult{Count: count})
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddr("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.engine.BalanceOf(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address:    formatAddr(addr),
		BalanceWei: formatWei(balance),
	})
}
