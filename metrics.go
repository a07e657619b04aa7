/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	gamesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sixnimmt_games_active",
			Help: "Games currently held in memory",
		},
	)
	gamesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sixnimmt_games_created_total",
			Help: "Total games created",
		},
	)
	gamesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sixnimmt_games_started_total",
			Help: "Total games that dealt their cards",
		},
	)
	gamesFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sixnimmt_games_finished_total",
			Help: "Total games played until every hand was empty",
		},
	)
	roundsProgressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sixnimmt_rounds_progressed_total",
			Help: "Total rounds resolved onto the board",
		},
	)
	actionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sixnimmt_actions_rejected_total",
			Help: "Total player actions refused by the rules",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(gamesActive)
	prometheus.MustRegister(gamesCreated)
	prometheus.MustRegister(gamesStarted)
	prometheus.MustRegister(gamesFinished)
	prometheus.MustRegister(roundsProgressed)
	prometheus.MustRegister(actionsRejected)
}

func registerMetricsHandler(cfg *Config, mux *httprouter.Router) {
	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.Handler())
}
