package rpc

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"beanstalk/core"
	"beanstalk/native/field"
	"beanstalk/native/market"
	"beanstalk/native/season"
	"beanstalk/native/silo"
	"beanstalk/native/sun"
	"beanstalk/native/well"
)

// Amounts are rendered as decimal strings.

type HeadResponse struct {
	Height    uint64 `json:"height"`
	Timestamp uint64 `json:"timestamp"`
	Root      string `json:"root"`
}

type SeasonResponse struct {
	Current             uint32 `json:"current"`
	Start               uint64 `json:"start"`
	Period              uint64 `json:"period"`
	SunriseTime         uint64 `json:"sunriseTime"`
	SunriseBlock        uint64 `json:"sunriseBlock"`
	AbovePeg            bool   `json:"abovePeg"`
	StandardMintedBeans string `json:"standardMintedBeans"`
	Soil                string `json:"soil"`
	InitialSoil         string `json:"initialSoil"`
	BeanSown            string `json:"beanSown"`
}

type WeatherResponse struct {
	Temp               uint64 `json:"temp"`
	MorningTemperature uint64 `json:"morningTemperature"`
	Soil               string `json:"soil"`
	ThisSowTime        uint32 `json:"thisSowTime"`
	LastSowTime        uint32 `json:"lastSowTime"`
	LastDeltaSoil      string `json:"lastDeltaSoil"`
}

type FieldResponse struct {
	ID          uint64 `json:"id"`
	Active      bool   `json:"active"`
	Pods        string `json:"pods"`
	Harvested   string `json:"harvested"`
	Harvestable string `json:"harvestable"`
}

type PlotResponse struct {
	Index string `json:"index"`
	Pods  string `json:"pods"`
}

type ListingResponse struct {
	Lister              string `json:"lister"`
	FieldID             uint64 `json:"fieldId"`
	Index               string `json:"index"`
	Start               string `json:"start"`
	Amount              string `json:"amount"`
	PricePerPod         uint32 `json:"pricePerPod"`
	MaxHarvestableIndex string `json:"maxHarvestableIndex"`
	MinFillAmount       string `json:"minFillAmount"`
}

type DepositResponse struct {
	Stem   int64  `json:"stem"`
	Amount string `json:"amount"`
	BDV    string `json:"bdv"`
}

type DepositsResponse struct {
	Deposits   []DepositResponse `json:"deposits"`
	GrownStalk string            `json:"grownStalk"`
}

type PoolResponse struct {
	Address        string `json:"address"`
	NonBeanToken   string `json:"nonBeanToken"`
	BeanReserve    string `json:"beanReserve"`
	NonBeanReserve string `json:"nonBeanReserve"`
	LPSupply       string `json:"lpSupply"`
	Ratio          string `json:"ratio"`
}

type DeltaBResponse struct {
	Current string `json:"current"`
	TWA     string `json:"twa"`
}

type EvaluationResponse struct {
	CaseID     uint8  `json:"caseId"`
	BeanSupply string `json:"beanSupply"`
	PodRate    string `json:"podRate"`
	L2SR       string `json:"l2sr"`
	Price      string `json:"price"`
	Demand     uint8  `json:"demand"`
}

type RouteResponse struct {
	Plan      string `json:"plan"`
	Points    uint64 `json:"points"`
	FieldID   uint64 `json:"fieldId"`
	Recipient string `json:"recipient,omitempty"`
}

type BalanceResponse struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

type EventResponse struct {
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func amount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func signed(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func seasonResponse(s *season.Season) SeasonResponse {
	return SeasonResponse{
		Current:             s.Current,
		Start:               s.Start,
		Period:              s.Period,
		SunriseTime:         s.SunriseTime,
		SunriseBlock:        s.SunriseBlock,
		AbovePeg:            s.AbovePeg,
		StandardMintedBeans: amount(s.StandardMintedBeans),
		Soil:                amount(s.Soil),
		InitialSoil:         amount(s.InitialSoil),
		BeanSown:            amount(s.BeanSown),
	}
}

func fieldResponse(f core.FieldInfo) FieldResponse {
	out := FieldResponse{ID: f.ID, Active: f.Active, Pods: "0", Harvested: "0", Harvestable: "0"}
	if f.Field != nil {
		out.Pods = amount(f.Pods)
		out.Harvested = amount(f.Harvested)
		out.Harvestable = amount(f.Harvestable)
	}
	return out
}

func plotResponses(plots []field.Plot) []PlotResponse {
	out := make([]PlotResponse, 0, len(plots))
	for _, p := range plots {
		out = append(out, PlotResponse{Index: amount(p.Index), Pods: amount(p.Pods)})
	}
	return out
}

func listingResponse(l *market.Listing) ListingResponse {
	return ListingResponse{
		Lister:              l.Lister.Hex(),
		FieldID:             l.FieldID,
		Index:               amount(l.Index),
		Start:               amount(l.Start),
		Amount:              amount(l.Amount),
		PricePerPod:         l.PricePerPod,
		MaxHarvestableIndex: amount(l.MaxHarvestableIndex),
		MinFillAmount:       amount(l.MinFillAmount),
	}
}

func depositResponses(views []silo.DepositView) []DepositResponse {
	out := make([]DepositResponse, 0, len(views))
	for _, d := range views {
		out = append(out, DepositResponse{Stem: d.Stem, Amount: amount(d.Amount), BDV: amount(d.BDV)})
	}
	return out
}

func poolResponse(p *well.Pool) PoolResponse {
	return PoolResponse{
		Address:        p.Address.Hex(),
		NonBeanToken:   p.NonBeanToken.Hex(),
		BeanReserve:    amount(p.BeanReserve),
		NonBeanReserve: amount(p.NonBeanReserve),
		LPSupply:       amount(p.LPSupply),
		Ratio:          amount(p.Ratio),
	}
}

func evaluationResponse(e *sun.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		CaseID:     e.CaseID,
		BeanSupply: amount(e.BeanSupply),
		PodRate:    amount(e.PodRate),
		L2SR:       amount(e.L2SR),
		Price:      amount(e.Price),
		Demand:     e.Demand,
	}
}

func routeResponses(routes []sun.Route) []RouteResponse {
	out := make([]RouteResponse, 0, len(routes))
	for _, r := range routes {
		resp := RouteResponse{Plan: r.Plan, Points: r.Points, FieldID: r.FieldID}
		if r.Recipient != (common.Address{}) {
			resp.Recipient = r.Recipient.Hex()
		}
		out = append(out, resp)
	}
	return out
}
