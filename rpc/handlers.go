package rpc

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"beanstalk/core/genesis"
)

const maxEventsPerPage = 500

func (s *Server) handleHead(w http.ResponseWriter, _ *http.Request) {
	block := s.reader.Block()
	writeJSON(w, http.StatusOK, HeadResponse{
		Height:    block.Height,
		Timestamp: block.Timestamp,
		Root:      s.reader.Root().Hex(),
	})
}

func (s *Server) handleSeason(w http.ResponseWriter, r *http.Request) {
	current, err := s.reader.Season()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seasonResponse(current))
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	weather, err := s.reader.Weather()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	temp, err := s.reader.Temperature()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	soil, err := s.reader.Soil()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WeatherResponse{
		Temp:               weather.Temp,
		MorningTemperature: temp,
		Soil:               amount(soil),
		ThisSowTime:        weather.ThisSowTime,
		LastSowTime:        weather.LastSowTime,
		LastDeltaSoil:      amount(weather.LastDeltaSoil),
	})
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.reader.Fields()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]FieldResponse, 0, len(fields))
	for _, f := range fields {
		out = append(out, fieldResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlots(w http.ResponseWriter, r *http.Request) {
	fieldID, err := uintParam(r, "fieldID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	account, err := accountParam(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	plots, err := s.reader.Plots(account, fieldID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plotResponses(plots))
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	fieldID, err := uintParam(r, "fieldID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	index, err := uint256.FromDecimal(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid index"))
		return
	}
	listing, err := s.reader.Listing(fieldID, index)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if listing == nil {
		s.fail(w, r, fmt.Errorf("listing at %s: %w", index.Dec(), errNotFound))
		return
	}
	writeJSON(w, http.StatusOK, listingResponse(listing))
}

func (s *Server) handleDeposits(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, err := accountParam(r, "token")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	deposits, err := s.reader.Deposits(account, token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	grown, err := s.reader.GrownStalk(account, token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DepositsResponse{
		Deposits:   depositResponses(deposits),
		GrownStalk: amount(grown),
	})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	addrs, err := s.reader.Pools()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]PoolResponse, 0, len(addrs))
	for _, addr := range addrs {
		pool, err := s.reader.Pool(addr)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, poolResponse(pool))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	addr, err := accountParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	pool, err := s.reader.Pool(addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponse(pool))
}

func (s *Server) handleDeltaB(w http.ResponseWriter, _ *http.Request) {
	current, twa := s.reader.DeltaB()
	writeJSON(w, http.StatusOK, DeltaBResponse{Current: signed(current), TWA: signed(twa)})
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	eval, err := s.reader.Evaluate()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluationResponse(eval))
}

func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, routeResponses(s.reader.Routes()))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r, "account")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	token, err := accountParam(r, "token")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := s.reader.BalanceOf(token, account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		Token:   token.Hex(),
		Account: account.Hex(),
		Balance: amount(balance),
	})
}

// handleEvents pages the recent events by sequence: ?from=N&limit=M.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var from uint64
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid from"))
			return
		}
		from = v
	}
	limit := maxEventsPerPage
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit"))
			return
		}
		if v < limit {
			limit = v
		}
	}
	writeJSON(w, http.StatusOK, s.events.Since(from, limit))
}

func uintParam(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func accountParam(r *http.Request, name string) (common.Address, error) {
	addr, err := genesis.ParseAccount(chi.URLParam(r, name))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return addr, nil
}
